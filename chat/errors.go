package chat

import (
	"errors"
	"fmt"
)

// Sentinel errors for flag-like failure kinds. Match with errors.Is.
var (
	// ErrInvalidPassword is returned when login credentials are rejected.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrForbidden is returned when the server refuses an operation.
	ErrForbidden = errors.New("forbidden")
	// ErrTokenExpired is returned when the session token is no longer valid.
	// It also stops automatic reconnection.
	ErrTokenExpired = errors.New("token expired")
	// ErrNetworkBroken is returned when the transport drops mid-session.
	// The reconnect loop recovers from it; long-lived operations never
	// surface it as a call failure.
	ErrNetworkBroken = errors.New("network broken")
	// ErrInvalidContent is returned when a content payload is malformed or
	// missing a field required by the operation.
	ErrInvalidContent = errors.New("invalid content")
	// ErrUserCancel is returned when the caller cancels an attachment
	// transfer or another long-running operation.
	ErrUserCancel = errors.New("canceled")
)

// HTTPError is a REST failure carrying the status code and the server's
// error message when one was present in the response body.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// NotFoundError is a typed lookup miss.
type NotFoundError struct {
	Kind string // "topic", "chatLog", "conversation" or "user"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// WebsocketError is a transport-level failure with the close or handshake
// reason. The connection manager recovers from it.
type WebsocketError struct {
	Reason string
	Err    error
}

func (e *WebsocketError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("websocket: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("websocket: %s", e.Reason)
}

func (e *WebsocketError) Unwrap() error {
	return e.Err
}

// StorageError is a local persistence failure. The store degrades to its
// in-memory backend for the rest of the process when the durable backend
// fails to open.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
