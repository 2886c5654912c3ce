// Package transport provides the duplex frame channel under the connection
// manager: a small interface over one live socket plus the websocket
// implementation the SDK ships with.
package transport

import (
	"context"
	"time"
)

// Callbacks receive transport lifecycle and frame events. Handlers run on
// the transport's goroutines and must not block; the connection manager
// forwards them onto its own loops.
type Callbacks struct {
	// OnConnecting fires when the handshake starts.
	OnConnecting func()
	// OnConnected fires once the channel is live, with the handshake
	// duration.
	OnConnected func(elapsed time.Duration)
	// OnUnauthorized fires when the server rejects the handshake with 401.
	OnUnauthorized func()
	// OnNetBroken fires when the channel dies for any reason other than a
	// local Close.
	OnNetBroken func(reason string)
	// OnMessage delivers one inbound text frame.
	OnMessage func(frame string)
}

// Transport is one duplex channel of UTF-8 text frames. Implementations are
// single-use: after the channel breaks or Close is called, the owner builds
// a fresh one for the next attempt.
type Transport interface {
	// Connect performs the handshake and starts the reader. It returns once
	// the channel is live or the handshake failed.
	Connect(ctx context.Context, endpoint, token string) error
	// Send writes one text frame. Safe for concurrent use.
	Send(frame string) error
	// Close tears the channel down without firing OnNetBroken.
	Close() error
}
