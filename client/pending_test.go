package client

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-im/parley-go/chat"
)

func newChatPending(chatID string, at time.Time) *pendingRequest {
	return &pendingRequest{
		req: &chat.Request{
			Type:    chat.RequestTypeChat,
			ID:      "req-" + chatID,
			TopicID: "t1",
			ChatID:  chatID,
		},
		frame:     `{"type":"chat"}`,
		canRetry:  true,
		updatedAt: at,
	}
}

// TestPendingKey checks resp correlation: chat sends correlate by chatId,
// everything else by request id.
func TestPendingKey(t *testing.T) {
	withChat := newChatPending("c1", time.Now())
	assert.Equal(t, "c1", withChat.key())

	noChat := &pendingRequest{req: &chat.Request{Type: chat.RequestTypeChat, ID: "r9"}}
	assert.Equal(t, "r9", noChat.key())
}

// TestPendingExpiry walks the three expiry conditions.
func TestPendingExpiry(t *testing.T) {
	now := time.Now()
	maxIdle := 20 * time.Second

	testCases := []struct {
		name    string
		mutate  func(*pendingRequest)
		expired bool
	}{
		{"fresh entry", func(p *pendingRequest) {}, false},
		{"retries exhausted", func(p *pendingRequest) { p.retry = 2 }, true},
		{"idle too long", func(p *pendingRequest) { p.updatedAt = now.Add(-21 * time.Second) }, true},
		{"not retryable", func(p *pendingRequest) { p.canRetry = false }, true},
		{"idle just under the limit", func(p *pendingRequest) { p.updatedAt = now.Add(-19 * time.Second) }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := newChatPending("c1", now)
			tc.mutate(p)
			assert.Equal(t, tc.expired, p.expired(2, maxIdle, now))
		})
	}
}

// TestPendingRemoveIsExclusive checks that a pending can be claimed exactly
// once, which is what makes onAck and onFail mutually exclusive.
func TestPendingRemoveIsExclusive(t *testing.T) {
	s := newPendingStore()
	s.add(newChatPending("c1", time.Now()))

	first := s.remove("c1")
	require.NotNil(t, first)
	assert.Nil(t, s.remove("c1"))
	assert.Equal(t, 0, s.len())
}

// TestPendingSweep checks that one sweep expires stale entries, removes
// them, and re-emits failed entries after the retry delay.
func TestPendingSweep(t *testing.T) {
	s := newPendingStore()
	now := time.Now()

	s.add(newChatPending("stale", now.Add(-30*time.Second)))
	s.add(newChatPending("failed", now))
	s.add(newChatPending("healthy", now))
	s.markFailed("failed", now.Add(-2*time.Second))

	expired, resend := s.sweep(now, 2, 20*time.Second, time.Second)

	require.Len(t, expired, 1)
	assert.Equal(t, "stale", expired[0].key())
	require.Len(t, resend, 1)
	assert.Equal(t, "failed", resend[0].key())

	// expired entries are gone for good
	assert.Nil(t, s.remove("stale"))

	// the re-emitted entry is not re-emitted again until it fails again
	_, resend = s.sweep(now, 2, 20*time.Second, time.Second)
	assert.Empty(t, resend)
}

// TestPendingMarkFailedCountsRetries checks that repeated send failures
// walk an entry toward expiry.
func TestPendingMarkFailedCountsRetries(t *testing.T) {
	s := newPendingStore()
	s.add(newChatPending("c1", time.Now()))

	now := time.Now()
	s.markFailed("c1", now)
	s.markFailed("c1", now)

	expired, _ := s.sweep(now, 2, 20*time.Second, time.Second)
	require.Len(t, expired, 1)
	assert.Equal(t, 2, expired[0].retry)
}

// TestPendingLive checks the reconnect resend set: live entries only.
func TestPendingLive(t *testing.T) {
	s := newPendingStore()
	now := time.Now()
	s.add(newChatPending("old", now.Add(-30*time.Second)))
	s.add(newChatPending("fresh", now))

	live := s.live(now, 2, 20*time.Second)
	require.Len(t, live, 1)
	assert.Equal(t, "fresh", live[0].key())
}

// TestOfflineQueueOrder checks FIFO drain, dedup and the drop-oldest cap.
func TestOfflineQueueOrder(t *testing.T) {
	q := newOfflineQueue(3)
	q.push("a")
	q.push("b")
	q.push("a") // dedup
	q.push("c")
	assert.Equal(t, []string{"a", "b", "c"}, q.drain())
	assert.Equal(t, 0, q.len())

	for i := 0; i < 5; i++ {
		q.push(fmt.Sprintf("k%d", i))
	}
	// capacity 3 keeps the newest three
	assert.Equal(t, []string{"k2", "k3", "k4"}, q.drain())
}
