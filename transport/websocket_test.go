package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-im/parley-go/chat"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// echoServer upgrades every request and echoes text frames back until the
// client hangs up.
func echoServer(t *testing.T, gotAuth chan<- string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotAuth != nil {
			gotAuth <- r.Header.Get("Authorization")
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(messageType, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// TestConnectAndEcho connects to an echo server and checks the full frame
// round trip plus the lifecycle callbacks.
func TestConnectAndEcho(t *testing.T) {
	gotAuth := make(chan string, 1)
	server := echoServer(t, gotAuth)

	connecting := make(chan struct{}, 1)
	connected := make(chan time.Duration, 1)
	frames := make(chan string, 1)
	ws := NewWebSocket(Callbacks{
		OnConnecting: func() { connecting <- struct{}{} },
		OnConnected:  func(elapsed time.Duration) { connected <- elapsed },
		OnMessage:    func(frame string) { frames <- frame },
	}, Options{})
	defer ws.Close()

	if err := ws.Connect(context.Background(), server.URL, "test-token"); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	select {
	case <-connecting:
	default:
		t.Fatal("expected OnConnecting before Connect returned")
	}
	select {
	case elapsed := <-connected:
		if elapsed < 0 {
			t.Errorf("expected non-negative handshake duration, got %v", elapsed)
		}
	default:
		t.Fatal("expected OnConnected before Connect returned")
	}
	if auth := <-gotAuth; auth != "Bearer test-token" {
		t.Errorf("expected bearer token on handshake, got %q", auth)
	}

	if err := ws.Send(`{"type":"nop"}`); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	select {
	case frame := <-frames:
		if frame != `{"type":"nop"}` {
			t.Errorf("expected echoed frame, got %q", frame)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for echoed frame")
	}
}

// TestConnectUnauthorized checks that a 401 handshake maps to
// chat.ErrTokenExpired and fires OnUnauthorized.
func TestConnectUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	unauthorized := make(chan struct{}, 1)
	ws := NewWebSocket(Callbacks{
		OnUnauthorized: func() { unauthorized <- struct{}{} },
	}, Options{})

	err := ws.Connect(context.Background(), server.URL, "stale-token")
	if !errors.Is(err, chat.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	select {
	case <-unauthorized:
	default:
		t.Fatal("expected OnUnauthorized before Connect returned")
	}
}

// TestConnectRefused checks that an unreachable server surfaces a
// WebsocketError instead of a bare transport error.
func TestConnectRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	ws := NewWebSocket(Callbacks{}, Options{})
	err := ws.Connect(context.Background(), server.URL, "")
	var wsErr *chat.WebsocketError
	if !errors.As(err, &wsErr) {
		t.Fatalf("expected WebsocketError, got %v", err)
	}
}

// TestServerCloseFiresNetBroken checks that a server-side close reaches
// OnNetBroken with the close text as reason.
func TestServerCloseFiresNetBroken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "maintenance")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}))
	defer server.Close()

	broken := make(chan string, 1)
	ws := NewWebSocket(Callbacks{
		OnNetBroken: func(reason string) { broken <- reason },
	}, Options{})
	defer ws.Close()

	if err := ws.Connect(context.Background(), server.URL, ""); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	select {
	case reason := <-broken:
		if reason != "maintenance" {
			t.Errorf("expected close text as reason, got %q", reason)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for OnNetBroken")
	}
}

// TestCloseSuppressesNetBroken checks that a local Close never reports the
// channel as broken.
func TestCloseSuppressesNetBroken(t *testing.T) {
	server := echoServer(t, nil)

	broken := make(chan string, 1)
	ws := NewWebSocket(Callbacks{
		OnNetBroken: func(reason string) { broken <- reason },
	}, Options{})

	if err := ws.Connect(context.Background(), server.URL, ""); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := ws.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := ws.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	select {
	case reason := <-broken:
		t.Fatalf("unexpected OnNetBroken after local close: %q", reason)
	case <-time.After(200 * time.Millisecond):
	}

	if err := ws.Send("late"); err == nil {
		t.Fatal("expected send after close to fail")
	}
}

// TestSendBeforeConnect checks the fail-fast path when no channel is live.
func TestSendBeforeConnect(t *testing.T) {
	ws := NewWebSocket(Callbacks{}, Options{})
	if err := ws.Send("early"); err == nil {
		t.Fatal("expected send before connect to fail")
	}
}

// TestWebSocketURL checks the HTTP to websocket scheme conversion.
func TestWebSocketURL(t *testing.T) {
	testCases := []struct {
		name     string
		endpoint string
		expected string
	}{
		{"http", "http://chat.example.com", "ws://chat.example.com/api/connect"},
		{"https", "https://chat.example.com", "wss://chat.example.com/api/connect"},
		{"trailing slash", "https://chat.example.com/", "wss://chat.example.com/api/connect"},
		{"with port", "http://127.0.0.1:8080", "ws://127.0.0.1:8080/api/connect"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := WebSocketURL(tc.endpoint); got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}
