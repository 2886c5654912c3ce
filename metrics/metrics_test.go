package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestTrackerCounters records a mix of events and checks the snapshot.
func TestTrackerCounters(t *testing.T) {
	tracker := NewTracker()

	tracker.ConnectStarted()
	tracker.ConnectFailed()
	tracker.ConnectStarted()
	tracker.ConnectSucceeded(120 * time.Millisecond)
	tracker.FrameSent()
	tracker.FrameSent()
	tracker.FrameReceived()
	tracker.RequestRetried()
	tracker.RequestExpired()
	tracker.SyncRun(3, 40)
	tracker.UploadDone(nil)
	tracker.UploadDone(errors.New("boom"))
	tracker.DownloadDone(nil)

	s := tracker.Snapshot()
	if s.ConnectAttempts != 2 {
		t.Errorf("ConnectAttempts = %d, want 2", s.ConnectAttempts)
	}
	if s.ConnectFailures != 1 {
		t.Errorf("ConnectFailures = %d, want 1", s.ConnectFailures)
	}
	if !s.Connected {
		t.Error("expected Connected after ConnectSucceeded")
	}
	if s.LastHandshake != 120*time.Millisecond {
		t.Errorf("LastHandshake = %v, want 120ms", s.LastHandshake)
	}
	if s.FramesSent != 2 || s.FramesReceived != 1 {
		t.Errorf("frames = %d/%d, want 2/1", s.FramesSent, s.FramesReceived)
	}
	if s.RequestsRetried != 1 || s.RequestsExpired != 1 {
		t.Errorf("retries = %d/%d, want 1/1", s.RequestsRetried, s.RequestsExpired)
	}
	if s.SyncRuns != 1 || s.ConversationsSynced != 3 || s.ChatLogsSynced != 40 {
		t.Errorf("sync = %d/%d/%d, want 1/3/40", s.SyncRuns, s.ConversationsSynced, s.ChatLogsSynced)
	}
	if s.Uploads != 2 || s.UploadErrors != 1 || s.Downloads != 1 || s.DownloadErrors != 0 {
		t.Errorf("transfers = %d/%d/%d/%d, want 2/1/1/0",
			s.Uploads, s.UploadErrors, s.Downloads, s.DownloadErrors)
	}
	if rate := s.SuccessRate(); rate != 50.0 {
		t.Errorf("SuccessRate = %.1f, want 50.0", rate)
	}

	tracker.Broken()
	if s := tracker.Snapshot(); s.Connected {
		t.Error("expected Connected cleared after Broken")
	}
}

// TestSuccessRateIdle checks the idle tracker reports full health.
func TestSuccessRateIdle(t *testing.T) {
	s := NewTracker().Snapshot()
	if rate := s.SuccessRate(); rate != 100.0 {
		t.Errorf("SuccessRate = %.1f, want 100.0", rate)
	}
}

// TestConcurrentUpdates hammers the tracker from multiple goroutines.
func TestConcurrentUpdates(t *testing.T) {
	tracker := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tracker.FrameSent()
				tracker.FrameReceived()
			}
		}()
	}
	wg.Wait()

	s := tracker.Snapshot()
	if s.FramesSent != 1000 || s.FramesReceived != 1000 {
		t.Errorf("frames = %d/%d, want 1000/1000", s.FramesSent, s.FramesReceived)
	}
}

// TestPrometheusHandler scrapes the handler and checks the exposition.
func TestPrometheusHandler(t *testing.T) {
	tracker := NewTracker()
	tracker.ConnectStarted()
	tracker.ConnectSucceeded(time.Millisecond)
	tracker.FrameSent()
	tracker.UploadDone(errors.New("boom"))

	recorder := httptest.NewRecorder()
	Handler(tracker).ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	if recorder.Code != 200 {
		t.Fatalf("expected 200 from scrape, got %d", recorder.Code)
	}
	body, err := io.ReadAll(recorder.Body)
	if err != nil {
		t.Fatalf("failed to read scrape body: %v", err)
	}

	expected := []string{
		"parley_client_connect_attempts_total 1",
		"parley_client_connected 1",
		"parley_client_frames_sent_total 1",
		`parley_client_transfers_total{direction="upload",status="error"} 1`,
	}
	for _, line := range expected {
		if !strings.Contains(string(body), line) {
			t.Errorf("scrape missing %q", line)
		}
	}
}
