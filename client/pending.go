package client

import (
	"sync"
	"time"

	"github.com/parley-im/parley-go/chat"
)

// maxOfflineQueue bounds how many sends issued while disconnected wait for
// the next connection. Beyond it the oldest entry is dropped.
const maxOfflineQueue = 128

// pendingRequest is one outgoing envelope awaiting its server response.
type pendingRequest struct {
	req      *chat.Request
	frame    string
	canRetry bool

	retry      int
	updatedAt  time.Time
	lastFailAt time.Time

	onAck  func(resp *chat.Request)
	onFail func(reason string)
}

// key is the correlation key an inbound resp will carry: the chatId for
// chats, the request id otherwise.
func (p *pendingRequest) key() string {
	if p.req.ChatID != "" {
		return p.req.ChatID
	}
	return p.req.ID
}

func (p *pendingRequest) expired(maxRetry int, maxSendIdle time.Duration, now time.Time) bool {
	return p.retry >= maxRetry || now.Sub(p.updatedAt) > maxSendIdle || !p.canRetry
}

// pendingStore maps correlation keys to in-flight requests. All mutation
// happens under the lock; callers run callbacks and I/O outside it.
type pendingStore struct {
	mu    sync.Mutex
	items map[string]*pendingRequest
}

func newPendingStore() *pendingStore {
	return &pendingStore{items: make(map[string]*pendingRequest)}
}

func (s *pendingStore) add(p *pendingRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[p.key()] = p
}

func (s *pendingStore) peek(key string) *pendingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[key]
}

// remove takes a pending out of the store, returning nil when the key is
// unknown (a late or duplicate response).
func (s *pendingStore) remove(key string) *pendingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.items[key]
	delete(s.items, key)
	return p
}

func (s *pendingStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// markFailed records a failed send attempt so the sweeper re-emits the
// frame after the retry delay.
func (s *pendingStore) markFailed(key string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.items[key]; ok {
		p.retry++
		p.lastFailAt = now
	}
}

// sweep partitions the store under one lock pass: entries past their retry
// budget or idle deadline are removed and returned as expired; entries that
// failed at least retryDelay ago have lastFailAt cleared and are returned
// for re-emission.
func (s *pendingStore) sweep(now time.Time, maxRetry int, maxSendIdle, retryDelay time.Duration) (expired, resend []*pendingRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, p := range s.items {
		if p.expired(maxRetry, maxSendIdle, now) {
			delete(s.items, key)
			expired = append(expired, p)
			continue
		}
		if !p.lastFailAt.IsZero() && now.Sub(p.lastFailAt) >= retryDelay {
			p.lastFailAt = time.Time{}
			resend = append(resend, p)
		}
	}
	return expired, resend
}

// live returns every pending that still has retries left, for resending
// after a reconnect.
func (s *pendingStore) live(now time.Time, maxRetry int, maxSendIdle time.Duration) []*pendingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]*pendingRequest, 0, len(s.items))
	for _, p := range s.items {
		if !p.expired(maxRetry, maxSendIdle, now) {
			items = append(items, p)
		}
	}
	return items
}

// offlineQueue holds the correlation keys of sends issued while no sender
// exists, in FIFO order.
type offlineQueue struct {
	mu    sync.Mutex
	keys  []string
	limit int
}

func newOfflineQueue(limit int) *offlineQueue {
	if limit <= 0 {
		limit = maxOfflineQueue
	}
	return &offlineQueue{limit: limit}
}

func (q *offlineQueue) push(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, k := range q.keys {
		if k == key {
			return
		}
	}
	if len(q.keys) >= q.limit {
		q.keys = q.keys[1:]
	}
	q.keys = append(q.keys, key)
}

// drain empties the queue, returning the keys in enqueue order.
func (q *offlineQueue) drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	keys := q.keys
	q.keys = nil
	return keys
}

func (q *offlineQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.keys)
}
