package chat

import (
	"testing"
	"time"
)

// TestContentTypeCountable tests the unread counting classification.
func TestContentTypeCountable(t *testing.T) {
	testCases := []struct {
		typ  ContentType
		want bool
	}{
		{ContentTypeText, true},
		{ContentTypeImage, true},
		{ContentTypeVoice, true},
		{ContentTypeRecall, false},
		{ContentTypeTopicJoin, false},
		{ContentTypeConversationUpdate, false},
		{ContentTypeUpdateExtra, false},
		{ContentTypeNone, false},
		{ContentType("x.custom"), false},
	}
	for _, tc := range testCases {
		if got := tc.typ.Countable(); got != tc.want {
			t.Errorf("Countable(%q) = %v, want %v", tc.typ, got, tc.want)
		}
	}
}

// TestContentTypeIsValid tests membership of the closed content type set.
func TestContentTypeIsValid(t *testing.T) {
	valid := []ContentType{
		ContentTypeText, ContentTypeRecall, ContentTypeTopicSilentMember,
		ContentTypeConversationRemoved, ContentTypeNone,
	}
	for _, typ := range valid {
		if !typ.IsValid() {
			t.Errorf("IsValid(%q) = false, want true", typ)
		}
	}
	if ContentType("whatever").IsValid() {
		t.Error("IsValid should reject unknown types")
	}
}

// TestRecountUnread tests the unread invariant under various watermarks.
func TestRecountUnread(t *testing.T) {
	testCases := []struct {
		name     string
		lastSeq  int64
		readSeq  int64
		want     int64
	}{
		{name: "behind", lastSeq: 10, readSeq: 4, want: 6},
		{name: "caught up", lastSeq: 10, readSeq: 10, want: 0},
		{name: "read ahead clamps to zero", lastSeq: 5, readSeq: 9, want: 0},
		{name: "empty", lastSeq: 0, readSeq: 0, want: 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Conversation{TopicID: "t", LastSeq: tc.lastSeq, LastReadSeq: tc.readSeq}
			c.RecountUnread()
			if c.Unread != tc.want {
				t.Errorf("unread = %d, want %d", c.Unread, tc.want)
			}
		})
	}
}

// TestMillisFromRFC3339 tests timestamp parsing used for sort keys.
func TestMillisFromRFC3339(t *testing.T) {
	ts := time.Date(2026, 8, 25, 10, 30, 0, 500_000_000, time.UTC)
	got := MillisFromRFC3339(ts.Format(time.RFC3339Nano))
	if got != ts.UnixMilli() {
		t.Errorf("millis = %d, want %d", got, ts.UnixMilli())
	}

	if MillisFromRFC3339("") != 0 {
		t.Error("empty timestamp should parse to 0")
	}
	if MillisFromRFC3339("not-a-time") != 0 {
		t.Error("malformed timestamp should parse to 0")
	}
}

// TestUpdatedAtMillis tests the conversation sort key helper.
func TestUpdatedAtMillis(t *testing.T) {
	c := &Conversation{TopicID: "t", UpdatedAt: "2026-08-25T10:00:00Z"}
	want := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC).UnixMilli()
	if got := c.UpdatedAtMillis(); got != want {
		t.Errorf("UpdatedAtMillis = %d, want %d", got, want)
	}
}

// TestLogStatusString tests the status labels.
func TestLogStatusString(t *testing.T) {
	testCases := []struct {
		status LogStatus
		want   string
	}{
		{LogStatusSending, "sending"},
		{LogStatusSent, "sent"},
		{LogStatusReceived, "received"},
		{LogStatusSendFailed, "sendFailed"},
		{LogStatus(99), "unknown"},
	}
	for _, tc := range testCases {
		if got := tc.status.String(); got != tc.want {
			t.Errorf("String(%d) = %q, want %q", tc.status, got, tc.want)
		}
	}
}
