// Package metrics tracks client health counters: connection churn, frame
// traffic, retry pressure and sync volume. The Tracker is cheap enough to
// update from the hot paths; the Prometheus side reads snapshots.
package metrics

import (
	"sync"
	"time"
)

// Tracker accumulates client counters. All methods are safe for concurrent
// use.
type Tracker struct {
	mu sync.RWMutex

	connectAttempts int64
	connectFailures int64
	connected       bool
	lastConnectedAt time.Time
	lastBrokenAt    time.Time
	lastHandshake   time.Duration

	framesSent     int64
	framesReceived int64

	requestsRetried int64
	requestsExpired int64

	syncRuns            int64
	conversationsSynced int64
	chatLogsSynced      int64

	uploads        int64
	uploadErrors   int64
	downloads      int64
	downloadErrors int64
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// ConnectStarted counts one connection attempt.
func (t *Tracker) ConnectStarted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectAttempts++
}

// ConnectSucceeded marks the channel live and records the handshake time.
func (t *Tracker) ConnectSucceeded(handshake time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	t.lastConnectedAt = time.Now()
	t.lastHandshake = handshake
}

// ConnectFailed counts one failed attempt.
func (t *Tracker) ConnectFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectFailures++
	t.connected = false
}

// Broken marks a live channel as lost.
func (t *Tracker) Broken() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.lastBrokenAt = time.Now()
}

// FrameSent counts one outbound frame.
func (t *Tracker) FrameSent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.framesSent++
}

// FrameReceived counts one inbound frame.
func (t *Tracker) FrameReceived() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.framesReceived++
}

// RequestRetried counts one request re-emitted by the retry sweeper.
func (t *Tracker) RequestRetried() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requestsRetried++
}

// RequestExpired counts one request dropped after exhausting its retries.
func (t *Tracker) RequestExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requestsExpired++
}

// SyncRun records one sync pass and the rows it brought in.
func (t *Tracker) SyncRun(conversations, chatLogs int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syncRuns++
	t.conversationsSynced += int64(conversations)
	t.chatLogsSynced += int64(chatLogs)
}

// UploadDone counts one finished upload.
func (t *Tracker) UploadDone(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uploads++
	if err != nil {
		t.uploadErrors++
	}
}

// DownloadDone counts one finished download.
func (t *Tracker) DownloadDone(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.downloads++
	if err != nil {
		t.downloadErrors++
	}
}

// Snapshot is a point-in-time copy of the tracker counters.
type Snapshot struct {
	ConnectAttempts int64
	ConnectFailures int64
	Connected       bool
	LastConnectedAt time.Time
	LastBrokenAt    time.Time
	LastHandshake   time.Duration

	FramesSent     int64
	FramesReceived int64

	RequestsRetried int64
	RequestsExpired int64

	SyncRuns            int64
	ConversationsSynced int64
	ChatLogsSynced      int64

	Uploads        int64
	UploadErrors   int64
	Downloads      int64
	DownloadErrors int64
}

// Snapshot copies the current counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		ConnectAttempts:     t.connectAttempts,
		ConnectFailures:     t.connectFailures,
		Connected:           t.connected,
		LastConnectedAt:     t.lastConnectedAt,
		LastBrokenAt:        t.lastBrokenAt,
		LastHandshake:       t.lastHandshake,
		FramesSent:          t.framesSent,
		FramesReceived:      t.framesReceived,
		RequestsRetried:     t.requestsRetried,
		RequestsExpired:     t.requestsExpired,
		SyncRuns:            t.syncRuns,
		ConversationsSynced: t.conversationsSynced,
		ChatLogsSynced:      t.chatLogsSynced,
		Uploads:             t.uploads,
		UploadErrors:        t.uploadErrors,
		Downloads:           t.downloads,
		DownloadErrors:      t.downloadErrors,
	}
}

// SuccessRate reports connect attempts that ended with a live channel, as a
// percentage. An idle tracker reports 100.
func (s Snapshot) SuccessRate() float64 {
	if s.ConnectAttempts == 0 {
		return 100.0
	}
	succeeded := s.ConnectAttempts - s.ConnectFailures
	return float64(succeeded) / float64(s.ConnectAttempts) * 100.0
}
