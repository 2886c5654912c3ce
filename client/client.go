// Package client is the SDK facade: one Client per signed-in user, owning
// the connection loop, the local store, the pending sends and the sync
// engine. Host applications drive it through the exported methods and
// receive events through an Observer.
package client

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/internal/cache"
	"github.com/parley-im/parley-go/media"
	"github.com/parley-im/parley-go/metrics"
	"github.com/parley-im/parley-go/services"
	"github.com/parley-im/parley-go/store"
	"github.com/parley-im/parley-go/store/db"
	"github.com/parley-im/parley-go/transport"
)

// TransportFactory builds the duplex channel for one connection attempt.
// The default uses the websocket transport; tests inject fakes.
type TransportFactory func(callbacks transport.Callbacks, opts transport.Options) transport.Transport

// Options tune a Client beyond its AuthInfo.
type Options struct {
	// RootPath is the directory holding the durable stores. Empty keeps
	// everything in memory.
	RootPath string
	// DBName names this user's store file. Defaults to the user id.
	DBName string
	// Config overrides individual tunables; zero fields keep defaults.
	Config *chat.Config
	// Transport replaces the websocket transport, for tests.
	Transport TransportFactory
	// Tracker receives health counters. Defaults to a fresh tracker.
	Tracker *metrics.Tracker
}

// Client is one signed-in chat session.
type Client struct {
	endpoint string
	userID   string

	config  *chat.Config
	service *services.Service
	store   *store.Store
	tracker *metrics.Tracker
	media   *media.Manager

	observerMu  sync.RWMutex
	observerVal Observer

	pendings *pendingStore
	offline  *offlineQueue

	sendMu   sync.Mutex
	senderCh chan outMessage

	convCache    *cache.LRU[string, *chat.Conversation]
	userCache    *cache.LRU[string, *chat.User]
	removedConvs *cache.LRU[string, int64]
	recentLogs   *cache.LRU[string, struct{}]

	convMu sync.Mutex
	userMu sync.Mutex

	pendingConvMu sync.Mutex
	pendingConvs  map[string]struct{}

	uploadMu    sync.Mutex
	uploadTasks map[string]context.CancelFunc

	typingMu     sync.Mutex
	typingLimits map[string]*rate.Limiter

	transportFactory TransportFactory
	state            atomic.Int32
	mustBroken       atomic.Bool
	appActive        atomic.Bool
	lastAliveAt      atomic.Int64
	appActiveCh      chan struct{}

	runMu    sync.Mutex
	running  bool
	stopRun  context.CancelFunc
	loopDone chan struct{}

	degraded bool
}

// NewClient builds a client for one AuthInfo. The durable store opens under
// opts.RootPath; when it cannot, the client runs on the memory store for
// the rest of the process.
func NewClient(info *chat.AuthInfo, opts Options) (*Client, error) {
	if info == nil || info.UserID == "" || info.Endpoint == "" {
		return nil, errors.New("auth info needs an endpoint and a user id")
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = &chat.Config{}
	}
	cfg.FillDefaults()

	dbName := opts.DBName
	if dbName == "" {
		dbName = info.UserID
	}
	var driver store.Driver
	degraded := false
	if opts.RootPath == "" {
		driver = memoryDriver()
	} else {
		driver, degraded = db.Open(opts.RootPath, dbName)
	}

	tracker := opts.Tracker
	if tracker == nil {
		tracker = metrics.NewTracker()
	}
	factory := opts.Transport
	if factory == nil {
		factory = func(callbacks transport.Callbacks, topts transport.Options) transport.Transport {
			return transport.NewWebSocket(callbacks, topts)
		}
	}

	service := services.New(info.Endpoint, info.Token)
	c := &Client{
		endpoint: info.Endpoint,
		userID:   info.UserID,
		config:   cfg,
		service:  service,
		store:    store.New(driver),
		tracker:  tracker,
		media: media.NewManager(service, tracker, media.Options{
			MaxConcurrent:    int64(cfg.MaxAttachmentConcurrent),
			ProgressInterval: time.Duration(cfg.MediaProgressIntervalMs) * time.Millisecond,
		}),
		observerVal: BaseObserver{},
		pendings:    newPendingStore(),
		offline:     newOfflineQueue(maxOfflineQueue),
		convCache: cache.NewLRU[string, *chat.Conversation](cfg.MaxConversationLimit,
			time.Duration(cfg.ConversationCacheExpireSecs)*time.Second),
		userCache: cache.NewLRU[string, *chat.User](cfg.MaxConversationLimit,
			time.Duration(cfg.UserCacheExpireSecs)*time.Second),
		removedConvs: cache.NewLRU[string, int64](cfg.MaxConversationLimit,
			time.Duration(cfg.RemovedConversationCacheExpireSecs)*time.Second),
		recentLogs:       cache.NewLRU[string, struct{}](cfg.MaxIncomingLogCacheCount, 0),
		pendingConvs:     make(map[string]struct{}),
		uploadTasks:      make(map[string]context.CancelFunc),
		typingLimits:     make(map[string]*rate.Limiter),
		transportFactory: factory,
		appActiveCh:      make(chan struct{}, 1),
		degraded:         degraded,
	}
	c.appActive.Store(true)
	c.state.Store(int32(stateIdle))
	return c, nil
}

// Connect starts the reconnect loop. It returns immediately; progress is
// reported through the observer. Calling Connect on a running client is a
// no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return nil
	}
	if c.state.Load() == int32(stateShutdown) {
		return errors.New("client is shut down")
	}

	c.mustBroken.Store(false)
	runCtx, cancel := context.WithCancel(ctx)
	c.stopRun = cancel
	c.loopDone = make(chan struct{})
	c.running = true
	go c.run(runCtx)
	return nil
}

// Shutdown stops the connection loop and waits for it to exit. Pending
// sends stay persisted; the store remains usable.
func (c *Client) Shutdown() {
	c.runMu.Lock()
	if !c.running {
		c.runMu.Unlock()
		return
	}
	cancel, done := c.stopRun, c.loopDone
	c.runMu.Unlock()

	cancel()
	<-done
	c.cancelAllUploads()
}

// Close shuts the connection down and releases the store. The client is
// unusable afterwards.
func (c *Client) Close() error {
	c.Shutdown()
	c.state.Store(int32(stateShutdown))
	return c.store.Close()
}

// AppActive tells the client the host app is in the foreground. A waiting
// reconnect backoff is cut short and retried immediately.
func (c *Client) AppActive() {
	c.appActive.Store(true)
	select {
	case c.appActiveCh <- struct{}{}:
	default:
	}
}

// AppDeactivate tells the client the host app left the foreground.
// Incoming messages no longer trigger automatic read receipts until
// AppActive is called; the connection itself stays up.
func (c *Client) AppDeactivate() {
	c.appActive.Store(false)
}

// ConnectionStatus reports the connection state as a string: idle,
// connecting, connected, broken or shutdown.
func (c *Client) ConnectionStatus() string {
	return connState(c.state.Load()).String()
}

// Degraded reports whether the durable store failed to open and the client
// is running on the in-memory fallback.
func (c *Client) Degraded() bool {
	return c.degraded
}

// UserID returns the signed-in user.
func (c *Client) UserID() string {
	return c.userID
}

// Endpoint returns the service endpoint this client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Metrics returns a snapshot of the health counters.
func (c *Client) Metrics() metrics.Snapshot {
	return c.tracker.Snapshot()
}

// MetricsTracker exposes the live tracker, for wiring into a Prometheus
// handler.
func (c *Client) MetricsTracker() *metrics.Tracker {
	return c.tracker
}

func (c *Client) logger() *slog.Logger {
	return slog.With("userId", c.userID)
}
