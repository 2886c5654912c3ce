package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "parley"
	subsystem = "client"
)

// Collector exposes a Tracker to Prometheus. Every scrape reads a fresh
// snapshot, so the Tracker stays the single source of truth and the hot
// paths never touch the Prometheus client.
type Collector struct {
	tracker *Tracker

	connectAttempts *prometheus.Desc
	connectFailures *prometheus.Desc
	connected       *prometheus.Desc
	framesSent      *prometheus.Desc
	framesReceived  *prometheus.Desc
	requestsRetried *prometheus.Desc
	requestsExpired *prometheus.Desc
	syncRuns        *prometheus.Desc
	conversations   *prometheus.Desc
	chatLogs        *prometheus.Desc
	transfers       *prometheus.Desc
}

// NewCollector builds a collector over tracker.
func NewCollector(tracker *Tracker) *Collector {
	name := func(n string) string {
		return prometheus.BuildFQName(namespace, subsystem, n)
	}
	return &Collector{
		tracker: tracker,
		connectAttempts: prometheus.NewDesc(name("connect_attempts_total"),
			"Connection attempts since start", nil, nil),
		connectFailures: prometheus.NewDesc(name("connect_failures_total"),
			"Connection attempts that failed", nil, nil),
		connected: prometheus.NewDesc(name("connected"),
			"Whether the channel is currently live", nil, nil),
		framesSent: prometheus.NewDesc(name("frames_sent_total"),
			"Outbound text frames", nil, nil),
		framesReceived: prometheus.NewDesc(name("frames_received_total"),
			"Inbound text frames", nil, nil),
		requestsRetried: prometheus.NewDesc(name("requests_retried_total"),
			"Requests re-emitted by the retry sweeper", nil, nil),
		requestsExpired: prometheus.NewDesc(name("requests_expired_total"),
			"Requests dropped after exhausting retries", nil, nil),
		syncRuns: prometheus.NewDesc(name("sync_runs_total"),
			"Completed sync passes", nil, nil),
		conversations: prometheus.NewDesc(name("conversations_synced_total"),
			"Conversations brought in by sync", nil, nil),
		chatLogs: prometheus.NewDesc(name("chat_logs_synced_total"),
			"Chat logs brought in by sync", nil, nil),
		transfers: prometheus.NewDesc(name("transfers_total"),
			"Finished attachment transfers", []string{"direction", "status"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connectAttempts
	ch <- c.connectFailures
	ch <- c.connected
	ch <- c.framesSent
	ch <- c.framesReceived
	ch <- c.requestsRetried
	ch <- c.requestsExpired
	ch <- c.syncRuns
	ch <- c.conversations
	ch <- c.chatLogs
	ch <- c.transfers
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.tracker.Snapshot()

	counter := func(desc *prometheus.Desc, v int64, labels ...string) prometheus.Metric {
		return prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}

	ch <- counter(c.connectAttempts, s.ConnectAttempts)
	ch <- counter(c.connectFailures, s.ConnectFailures)

	live := 0.0
	if s.Connected {
		live = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, live)

	ch <- counter(c.framesSent, s.FramesSent)
	ch <- counter(c.framesReceived, s.FramesReceived)
	ch <- counter(c.requestsRetried, s.RequestsRetried)
	ch <- counter(c.requestsExpired, s.RequestsExpired)
	ch <- counter(c.syncRuns, s.SyncRuns)
	ch <- counter(c.conversations, s.ConversationsSynced)
	ch <- counter(c.chatLogs, s.ChatLogsSynced)

	ch <- counter(c.transfers, s.Uploads-s.UploadErrors, "upload", "success")
	ch <- counter(c.transfers, s.UploadErrors, "upload", "error")
	ch <- counter(c.transfers, s.Downloads-s.DownloadErrors, "download", "success")
	ch <- counter(c.transfers, s.DownloadErrors, "download", "error")
}

// Handler returns an HTTP handler serving the tracker in Prometheus text
// format on its own registry.
func Handler(tracker *Tracker) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(tracker))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
