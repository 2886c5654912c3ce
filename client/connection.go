package client

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/transport"
)

type connState int32

const (
	stateIdle connState = iota
	stateConnecting
	stateConnected
	stateBroken
	stateShutdown
)

func (s connState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateBroken:
		return "broken"
	case stateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// outMessage is one frame queued for the sender loop. key is the pending
// correlation key, empty for fire-and-forget frames.
type outMessage struct {
	frame string
	key   string
}

const (
	senderBuffer   = 64
	incomingBuffer = 64

	sweepInterval          = time.Second
	retryDelay             = time.Second
	keepaliveCheckInterval = 5 * time.Second
)

func (c *Client) setState(s connState) {
	c.state.Store(int32(s))
}

func (c *Client) markAlive() {
	c.lastAliveAt.Store(chat.NowMillis())
}

func (c *Client) maxSendIdle() time.Duration {
	return time.Duration(c.config.MaxSendIdleSecs) * time.Second
}

// run is the outer reconnect loop: Connecting, Connected, Broken, wait,
// Connecting again. It exits on context cancel, an expired token or a
// kickout.
func (c *Client) run(ctx context.Context) {
	defer func() {
		c.runMu.Lock()
		c.running = false
		done := c.loopDone
		c.runMu.Unlock()
		close(done)
	}()

	// The sweeper outlives individual sessions so queued sends expire on
	// schedule even while the connection is down.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go c.sweepLoop(sweepCtx)

	brokenCount := 0
	for {
		if ctx.Err() != nil || c.mustBroken.Load() {
			c.setState(stateIdle)
			return
		}

		c.setState(stateConnecting)
		connected, err := c.session(ctx)
		if connected {
			brokenCount = 0
		}

		switch {
		case ctx.Err() != nil:
			c.setState(stateIdle)
			return
		case errors.Is(err, chat.ErrTokenExpired):
			c.setState(stateBroken)
			c.observer().OnTokenExpired("token expired")
			return
		case c.mustBroken.Load():
			c.setState(stateBroken)
			return
		}

		brokenCount++
		c.setState(stateBroken)
		c.backoffWait(ctx, brokenCount)
	}
}

// session runs one transport from handshake to breakdown. It reports
// whether the handshake succeeded so the caller can reset its backoff.
func (c *Client) session(ctx context.Context) (bool, error) {
	sessDone := make(chan struct{})
	defer close(sessDone)

	incoming := make(chan string, incomingBuffer)
	broken := make(chan string, 1)

	tr := c.transportFactory(transport.Callbacks{
		OnConnecting: func() {
			c.observer().OnConnecting()
		},
		OnConnected: func(elapsed time.Duration) {
			c.tracker.ConnectSucceeded(elapsed)
			c.observer().OnConnected(elapsed)
		},
		OnNetBroken: func(reason string) {
			select {
			case broken <- reason:
			default:
			}
		},
		OnMessage: func(frame string) {
			select {
			case incoming <- frame:
			case <-sessDone:
			}
		},
	}, transport.Options{
		PingInterval: time.Duration(c.config.PingIntervalSecs) * time.Second,
		PingTimeout:  time.Duration(c.config.PingTimeoutSecs) * time.Second,
	})

	c.tracker.ConnectStarted()
	if err := tr.Connect(ctx, c.endpoint, c.service.Token()); err != nil {
		c.tracker.ConnectFailed()
		c.logger().Warn("Connect failed", "endpoint", c.endpoint, "error", err)
		return false, err
	}

	c.setState(stateConnected)
	c.markAlive()

	senderCh := make(chan outMessage, senderBuffer)
	c.sendMu.Lock()
	c.senderCh = senderCh
	c.sendMu.Unlock()
	defer func() {
		c.sendMu.Lock()
		c.senderCh = nil
		c.sendMu.Unlock()
		tr.Close()
		c.tracker.Broken()
	}()

	c.flushOfflineRequests()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.senderLoop(gctx, tr, senderCh) })
	g.Go(func() error { return c.keepaliveLoop(gctx, tr) })
	g.Go(func() error { return c.incomingLoop(gctx, incoming) })
	g.Go(func() error {
		select {
		case reason := <-broken:
			return &chat.WebsocketError{Reason: reason}
		case <-gctx.Done():
			return gctx.Err()
		}
	})

	err := g.Wait()
	if ctx.Err() == nil && !c.mustBroken.Load() {
		c.logger().Warn("Connection lost", "reason", reasonOf(err))
		c.observer().OnNetBroken(reasonOf(err))
	}
	return true, err
}

// senderLoop writes queued frames in order. A failed send marks the
// pending for retry and tears the session down.
func (c *Client) senderLoop(ctx context.Context, tr transport.Transport, ch <-chan outMessage) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			if err := tr.Send(msg.frame); err != nil {
				if msg.key != "" {
					c.pendings.markFailed(msg.key, time.Now())
				}
				return err
			}
			c.tracker.FrameSent()
		}
	}
}

// keepaliveLoop checks every five seconds whether the channel has been
// silent past the keepalive interval and sends a nop when it has.
func (c *Client) keepaliveLoop(ctx context.Context, tr transport.Transport) error {
	nopFrame, err := chat.NewNop().Marshal()
	if err != nil {
		return err
	}
	interval := time.Duration(c.config.KeepaliveIntervalSecs) * time.Second

	ticker := time.NewTicker(keepaliveCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			idle := time.Duration(chat.NowMillis()-c.lastAliveAt.Load()) * time.Millisecond
			if idle < interval {
				continue
			}
			if err := tr.Send(nopFrame); err != nil {
				return err
			}
			c.tracker.FrameSent()
		}
	}
}

// incomingLoop decodes inbound frames and hands them to the dispatcher.
func (c *Client) incomingLoop(ctx context.Context, incoming <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-incoming:
			c.tracker.FrameReceived()
			c.markAlive()
			req, err := chat.DecodeRequest(frame)
			if err != nil {
				c.logger().Warn("Failed to decode incoming frame", "error", err)
				continue
			}
			if err := c.dispatch(ctx, req); err != nil {
				return err
			}
		}
	}
}

// backoffWait sleeps min(brokenCount, MaxConnectIntervalSecs) seconds.
// AppActive cuts the wait short for an immediate retry.
func (c *Client) backoffWait(ctx context.Context, brokenCount int) {
	secs := brokenCount
	if secs > c.config.MaxConnectIntervalSecs {
		secs = c.config.MaxConnectIntervalSecs
	}
	if secs <= 0 {
		return
	}
	timer := time.NewTimer(time.Duration(secs) * time.Second)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-c.appActiveCh:
	case <-timer.C:
	}
}

// enqueue hands a frame to the live sender. With no sender, or a full
// backlog, correlated frames park their key for the next connection and
// fire-and-forget frames are dropped.
func (c *Client) enqueue(msg outMessage) bool {
	c.sendMu.Lock()
	ch := c.senderCh
	c.sendMu.Unlock()
	if ch == nil {
		if msg.key != "" {
			c.offline.push(msg.key)
		}
		return false
	}
	select {
	case ch <- msg:
		return true
	default:
		if msg.key != "" {
			c.offline.push(msg.key)
		}
		return false
	}
}

// flushOfflineRequests re-emits every live pending after a reconnect:
// sends queued while offline go first, in enqueue order, then the rest.
func (c *Client) flushOfflineRequests() {
	now := time.Now()
	seen := make(map[string]bool)
	for _, key := range c.offline.drain() {
		p := c.pendings.peek(key)
		if p == nil || seen[key] {
			continue
		}
		seen[key] = true
		c.enqueue(outMessage{frame: p.frame, key: key})
	}
	for _, p := range c.pendings.live(now, c.config.MaxRetry, c.maxSendIdle()) {
		key := p.key()
		if seen[key] {
			continue
		}
		seen[key] = true
		c.enqueue(outMessage{frame: p.frame, key: key})
	}
}

// sweepLoop expires and re-emits pending sends once a second.
func (c *Client) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.sweepPendings(now)
		}
	}
}

func (c *Client) sweepPendings(now time.Time) {
	expired, resend := c.pendings.sweep(now, c.config.MaxRetry, c.maxSendIdle(), retryDelay)
	for _, p := range expired {
		c.tracker.RequestExpired()
		c.failPending(p, "send expired")
	}
	for _, p := range resend {
		c.tracker.RequestRetried()
		c.enqueue(outMessage{frame: p.frame, key: p.key()})
	}
}

// failPending marks the log failed and notifies the sender. Each pending
// reaches this at most once; the store hands out exclusive ownership.
func (c *Client) failPending(p *pendingRequest, reason string) {
	if p.req.Type == chat.RequestTypeChat && p.req.ChatID != "" {
		c.markLogSendFailed(context.Background(), p.req.TopicID, p.req.ChatID)
	}
	if p.onFail != nil {
		p.onFail(reason)
	}
}

func reasonOf(err error) string {
	var wsErr *chat.WebsocketError
	if errors.As(err, &wsErr) {
		return wsErr.Reason
	}
	if err != nil {
		return err.Error()
	}
	return "connection lost"
}
