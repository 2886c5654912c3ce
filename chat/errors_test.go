package chat

import (
	"errors"
	"fmt"
	"testing"
)

// TestSentinelMatching tests that wrapped sentinels survive errors.Is.
func TestSentinelMatching(t *testing.T) {
	wrapped := fmt.Errorf("login: %w", ErrInvalidPassword)
	if !errors.Is(wrapped, ErrInvalidPassword) {
		t.Error("wrapped ErrInvalidPassword not matched")
	}
	if errors.Is(wrapped, ErrForbidden) {
		t.Error("ErrForbidden matched unexpectedly")
	}
}

// TestHTTPError tests message formatting and errors.As extraction.
func TestHTTPError(t *testing.T) {
	err := fmt.Errorf("list conversations: %w", &HTTPError{Status: 500, Message: "boom"})

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatal("HTTPError not extracted")
	}
	if httpErr.Status != 500 {
		t.Errorf("status = %d, want 500", httpErr.Status)
	}
	if got := httpErr.Error(); got != "http 500: boom" {
		t.Errorf("message = %q", got)
	}

	bare := &HTTPError{Status: 404}
	if got := bare.Error(); got != "http 404" {
		t.Errorf("message without body = %q", got)
	}
}

// TestNotFoundError tests the typed lookup miss.
func TestNotFoundError(t *testing.T) {
	err := &NotFoundError{Kind: "conversation", ID: "t1"}
	if got := err.Error(); got != "conversation t1 not found" {
		t.Errorf("message = %q", got)
	}
}

// TestWebsocketErrorUnwrap tests that the transport cause is preserved.
func TestWebsocketErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &WebsocketError{Reason: "read", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if got := (&WebsocketError{Reason: "handshake"}).Error(); got != "websocket: handshake" {
		t.Errorf("message = %q", got)
	}
}

// TestStorageErrorUnwrap tests that the backend cause is preserved.
func TestStorageErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := &StorageError{Op: "set", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
}
