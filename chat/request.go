package chat

import (
	"encoding/json"
	"fmt"
)

// RequestType tags a wire envelope. Unknown values received from the server
// are kept verbatim and routed to the unknown handler.
type RequestType string

const (
	RequestTypeChat    RequestType = "chat"
	RequestTypeTyping  RequestType = "typing"
	RequestTypeRead    RequestType = "read"
	RequestTypeResp    RequestType = "resp"
	RequestTypeKickout RequestType = "kickout"
	RequestTypeSystem  RequestType = "system"
	RequestTypeNop     RequestType = "nop"
)

// IsValid checks if the request type belongs to the closed set.
func (t RequestType) IsValid() bool {
	switch t {
	case RequestTypeChat, RequestTypeTyping, RequestTypeRead, RequestTypeResp,
		RequestTypeKickout, RequestTypeSystem, RequestTypeNop:
		return true
	default:
		return false
	}
}

// CanRetry reports whether an outgoing request of this type survives a
// reconnect. Typing and read frames are dropped silently instead.
func (t RequestType) CanRetry() bool {
	return t != RequestTypeTyping && t != RequestTypeRead
}

// Request is the wire envelope exchanged over the transport. One JSON
// object per text frame, camelCase fields, empty and default fields
// omitted.
type Request struct {
	Type            RequestType `json:"type"`
	ID              string      `json:"id,omitempty"`
	Code            uint32      `json:"code,omitempty"`
	TopicID         string      `json:"topicId,omitempty"`
	Seq             int64       `json:"seq,omitempty"`
	Attendee        string      `json:"attendee,omitempty"`
	AttendeeProfile *User       `json:"attendeeProfile,omitempty"`
	ChatID          string      `json:"chatId,omitempty"`
	CreatedAt       string      `json:"createdAt,omitempty"`
	Content         *Content    `json:"content,omitempty"`
	Message         string      `json:"message,omitempty"`
	Source          string      `json:"source,omitempty"`
}

// Marshal serializes the envelope to a single text frame.
func (r *Request) Marshal() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	return string(data), nil
}

// DecodeRequest parses a text frame into a Request. Decoding is tolerant:
// an unknown type or content type is preserved verbatim and missing
// optional fields default to their zero values. Only malformed JSON fails.
func DecodeRequest(frame string) (*Request, error) {
	var req Request
	if err := json.Unmarshal([]byte(frame), &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &req, nil
}

// NewResponse builds the acknowledgement for an inbound request, echoing
// its id and chatId with the given code (200 means success).
func NewResponse(req *Request, code uint32) *Request {
	return &Request{
		Type:    RequestTypeResp,
		ID:      req.ID,
		Code:    code,
		TopicID: req.TopicID,
		ChatID:  req.ChatID,
	}
}

// NewNop builds a keepalive frame.
func NewNop() *Request {
	return &Request{Type: RequestTypeNop}
}
