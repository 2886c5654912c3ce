package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-im/parley-go/chat"
)

const (
	defaultHandshakeTimeout = 30 * time.Second
	defaultPingInterval     = 30 * time.Second
	defaultPingTimeout      = 5 * time.Second

	writeTimeout = 10 * time.Second

	// ConnectPath is the websocket route under the service endpoint.
	ConnectPath = "/api/connect"
)

// Options tune the websocket transport. Zero values fall back to defaults.
type Options struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PingTimeout      time.Duration
}

// WebSocket carries text frames over a single websocket connection. It pings
// the server every PingInterval and treats a missing pong as a dead channel,
// so half-open connections surface as OnNetBroken instead of silence.
type WebSocket struct {
	callbacks Callbacks
	opts      Options

	writeMu sync.Mutex
	conn    *websocket.Conn

	closed atomic.Bool
	done   chan struct{}
}

// NewWebSocket builds a single-use websocket transport.
func NewWebSocket(callbacks Callbacks, opts Options) *WebSocket {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = defaultPingTimeout
	}
	return &WebSocket{callbacks: callbacks, opts: opts, done: make(chan struct{})}
}

// Connect dials endpoint's websocket route with the token as a Bearer header
// and starts the reader and ping loops. A 401 from the server fires
// OnUnauthorized and returns chat.ErrTokenExpired so the caller can stop
// retrying with a dead credential.
func (t *WebSocket) Connect(ctx context.Context, endpoint, token string) error {
	if t.callbacks.OnConnecting != nil {
		t.callbacks.OnConnecting()
	}

	dialer := websocket.Dialer{HandshakeTimeout: t.opts.HandshakeTimeout}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	conn, resp, err := dialer.DialContext(ctx, WebSocketURL(endpoint), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized {
				if t.callbacks.OnUnauthorized != nil {
					t.callbacks.OnUnauthorized()
				}
				return chat.ErrTokenExpired
			}
			return &chat.WebsocketError{
				Reason: fmt.Sprintf("handshake rejected with status %d", resp.StatusCode),
				Err:    err,
			}
		}
		return &chat.WebsocketError{Reason: "handshake failed", Err: err}
	}

	t.writeMu.Lock()
	t.conn = conn
	t.writeMu.Unlock()

	// The server must answer a ping within pongWait or the read deadline
	// trips and the channel is reported broken.
	pongWait := t.opts.PingInterval + t.opts.PingTimeout
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if t.callbacks.OnConnected != nil {
		t.callbacks.OnConnected(time.Since(start))
	}

	go t.readLoop(conn, pongWait)
	go t.pingLoop(conn)
	return nil
}

// Send writes one text frame. It fails fast when the channel is not live so
// the caller can park the payload for a retry instead of blocking.
func (t *WebSocket) Send(frame string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.conn == nil {
		return &chat.WebsocketError{Reason: "not connected"}
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return &chat.WebsocketError{Reason: "write failed", Err: err}
	}
	return nil
}

// Close shuts the channel down. The reader sees the closed socket and exits
// without firing OnNetBroken.
func (t *WebSocket) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.writeMu.Lock()
	conn := t.conn
	t.conn = nil
	t.writeMu.Unlock()
	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	return conn.Close()
}

func (t *WebSocket) readLoop(conn *websocket.Conn, pongWait time.Duration) {
	defer close(t.done)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !t.closed.Load() && t.callbacks.OnNetBroken != nil {
				t.callbacks.OnNetBroken(closeReason(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if messageType == websocket.TextMessage && t.callbacks.OnMessage != nil {
			t.callbacks.OnMessage(string(data))
		}
	}
}

func (t *WebSocket) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(t.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(t.opts.PingTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func closeReason(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Text != "" {
			return closeErr.Text
		}
		return fmt.Sprintf("connection closed with code %d", closeErr.Code)
	}
	return err.Error()
}

// WebSocketURL converts an HTTP endpoint into the websocket URL for the
// connect route.
func WebSocketURL(endpoint string) string {
	u := endpoint
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return strings.TrimRight(u, "/") + ConnectPath
}
