package chat

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

// TestRequestRoundTrip tests that decode followed by encode preserves every
// envelope the client produces.
func TestRequestRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		req  *Request
	}{
		{
			name: "chat with text content",
			req: &Request{
				Type:      RequestTypeChat,
				ID:        "abcdef123456",
				TopicID:   "u1:u2",
				ChatID:    "abcdef1234",
				CreatedAt: "2026-08-25T10:00:00Z",
				Content:   &Content{Type: ContentTypeText, Text: "hi"},
			},
		},
		{
			name: "resp with code and seq",
			req: &Request{
				Type:   RequestTypeResp,
				ID:     "abcdef123456",
				Code:   200,
				ChatID: "abcdef1234",
				Seq:    42,
			},
		},
		{
			name: "nop",
			req:  &Request{Type: RequestTypeNop},
		},
		{
			name: "kickout with message",
			req:  &Request{Type: RequestTypeKickout, Message: "other session"},
		},
		{
			name: "chat with attendee profile",
			req: &Request{
				Type:            RequestTypeChat,
				TopicID:         "t1",
				ChatID:          "abcdef1234",
				Attendee:        "u2",
				AttendeeProfile: &User{UserID: "u2", Name: "Two"},
				Content: &Content{
					Type:     ContentTypeImage,
					Text:     "https://files/x.png",
					Size:     1024,
					Width:    640,
					Height:   480,
					Mentions: []string{"u3"},
					Extra:    map[string]string{"k": "v"},
				},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := tc.req.Marshal()
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}

			decoded, err := DecodeRequest(frame)
			if err != nil {
				t.Fatalf("DecodeRequest failed: %v", err)
			}
			if !reflect.DeepEqual(decoded, tc.req) {
				t.Errorf("round trip mismatch:\n got  %+v\n want %+v", decoded, tc.req)
			}

			// A second encode must produce the same frame.
			again, err := decoded.Marshal()
			if err != nil {
				t.Fatalf("second Marshal failed: %v", err)
			}
			if again != frame {
				t.Errorf("frames differ:\n got  %s\n want %s", again, frame)
			}
		})
	}
}

// TestRequestOmitsEmptyFields tests that default fields stay off the wire.
func TestRequestOmitsEmptyFields(t *testing.T) {
	frame, err := NewNop().Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if frame != `{"type":"nop"}` {
		t.Errorf("unexpected nop frame: %s", frame)
	}

	req := &Request{
		Type:    RequestTypeChat,
		TopicID: "t1",
		ChatID:  "abcdef1234",
		Content: &Content{Type: ContentTypeText, Text: "hi"},
	}
	frame, err = req.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, absent := range []string{"seq", "code", "attendee", "message", "source", "createdAt"} {
		if strings.Contains(frame, `"`+absent+`"`) {
			t.Errorf("frame should omit %q: %s", absent, frame)
		}
	}
}

// TestDecodeUnknownType tests that unknown request and content types are
// preserved verbatim instead of failing.
func TestDecodeUnknownType(t *testing.T) {
	req, err := DecodeRequest(`{"type":"conference.invite","topicId":"t1","content":{"type":"x.custom","text":"hi"}}`)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if req.Type.IsValid() {
		t.Errorf("expected unknown request type, got %q", req.Type)
	}
	if got := string(req.Type); got != "conference.invite" {
		t.Errorf("raw type not preserved: %q", got)
	}
	if req.Content == nil || string(req.Content.Type) != "x.custom" {
		t.Errorf("raw content type not preserved: %+v", req.Content)
	}

	frame, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(frame, `"type":"conference.invite"`) || !strings.Contains(frame, `"type":"x.custom"`) {
		t.Errorf("raw types lost on re-encode: %s", frame)
	}
}

// TestDecodeMalformedFrame tests that broken JSON is the only hard error.
func TestDecodeMalformedFrame(t *testing.T) {
	testCases := []struct {
		name    string
		frame   string
		wantErr bool
	}{
		{name: "not json", frame: "nope", wantErr: true},
		{name: "truncated", frame: `{"type":"chat"`, wantErr: true},
		{name: "missing optionals", frame: `{"type":"chat"}`, wantErr: false},
		{name: "empty object", frame: `{}`, wantErr: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeRequest(tc.frame)
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestNewResponse tests that acknowledgements echo the request identity.
func TestNewResponse(t *testing.T) {
	req := &Request{
		Type:    RequestTypeChat,
		ID:      "abcdef123456",
		TopicID: "t1",
		ChatID:  "abcdef1234",
		Content: &Content{Type: ContentTypeText, Text: "x"},
	}
	resp := NewResponse(req, 200)
	if resp.Type != RequestTypeResp {
		t.Errorf("expected resp type, got %q", resp.Type)
	}
	if resp.ID != req.ID || resp.ChatID != req.ChatID || resp.TopicID != req.TopicID {
		t.Errorf("response does not echo request identity: %+v", resp)
	}
	if resp.Code != 200 {
		t.Errorf("expected code 200, got %d", resp.Code)
	}
	if resp.Content != nil {
		t.Error("response should not carry content")
	}
}

// TestCanRetry tests the retry classification of request types.
func TestCanRetry(t *testing.T) {
	testCases := []struct {
		typ  RequestType
		want bool
	}{
		{RequestTypeChat, true},
		{RequestTypeTyping, false},
		{RequestTypeRead, false},
		{RequestTypeResp, true},
		{RequestType("custom"), true},
	}
	for _, tc := range testCases {
		if got := tc.typ.CanRetry(); got != tc.want {
			t.Errorf("CanRetry(%q) = %v, want %v", tc.typ, got, tc.want)
		}
	}
}

// TestWireFieldNames pins the camelCase field names of the envelope.
func TestWireFieldNames(t *testing.T) {
	req := &Request{
		Type:            RequestTypeChat,
		ID:              "abcdef123456",
		Code:            201,
		TopicID:         "t1",
		Seq:             7,
		Attendee:        "u2",
		AttendeeProfile: &User{UserID: "u2"},
		ChatID:          "abcdef1234",
		CreatedAt:       "2026-08-25T10:00:00Z",
		Content:         &Content{Type: ContentTypeText, Text: "x", MentionAll: true},
		Message:         "m",
		Source:          "s",
	}
	frame, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(frame), &raw); err != nil {
		t.Fatalf("frame is not a JSON object: %v", err)
	}
	for _, key := range []string{
		"type", "id", "code", "topicId", "seq", "attendee",
		"attendeeProfile", "chatId", "createdAt", "content", "message", "source",
	} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing wire field %q in %s", key, frame)
		}
	}
	if len(raw) != 12 {
		t.Errorf("unexpected extra wire fields: %s", frame)
	}
}
