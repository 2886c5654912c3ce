package chat

import "testing"

// TestDefaultConfig pins the default tunables.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	testCases := []struct {
		name string
		got  int
		want int
	}{
		{"MaxRetry", cfg.MaxRetry, 2},
		{"MaxSendIdleSecs", cfg.MaxSendIdleSecs, 20},
		{"MaxRecallSecs", cfg.MaxRecallSecs, 120},
		{"MaxConversationLimit", cfg.MaxConversationLimit, 1000},
		{"MaxLogsLimit", cfg.MaxLogsLimit, 100},
		{"MaxSyncLogsMaxCount", cfg.MaxSyncLogsMaxCount, 200},
		{"MaxConnectIntervalSecs", cfg.MaxConnectIntervalSecs, 5},
		{"MaxAttachmentConcurrent", cfg.MaxAttachmentConcurrent, 12},
		{"MaxIncomingLogCacheCount", cfg.MaxIncomingLogCacheCount, 300},
		{"MaxSyncLogsLimit", cfg.MaxSyncLogsLimit, 500},
		{"KeepaliveIntervalSecs", cfg.KeepaliveIntervalSecs, 50},
		{"PingIntervalSecs", cfg.PingIntervalSecs, 30},
		{"MediaProgressIntervalMs", cfg.MediaProgressIntervalMs, 300},
		{"ConversationCacheExpireSecs", cfg.ConversationCacheExpireSecs, 60},
		{"UserCacheExpireSecs", cfg.UserCacheExpireSecs, 60},
		{"RemovedConversationCacheExpireSecs", cfg.RemovedConversationCacheExpireSecs, 1},
		{"PingTimeoutSecs", cfg.PingTimeoutSecs, 5},
	}
	for _, tc := range testCases {
		if tc.got != tc.want {
			t.Errorf("%s = %d, want %d", tc.name, tc.got, tc.want)
		}
	}
}

// TestFillDefaults tests that only zero fields are replaced.
func TestFillDefaults(t *testing.T) {
	cfg := &Config{MaxRetry: 5, KeepaliveIntervalSecs: 10}
	cfg.FillDefaults()

	if cfg.MaxRetry != 5 {
		t.Errorf("MaxRetry overwritten: %d", cfg.MaxRetry)
	}
	if cfg.KeepaliveIntervalSecs != 10 {
		t.Errorf("KeepaliveIntervalSecs overwritten: %d", cfg.KeepaliveIntervalSecs)
	}
	if cfg.MaxSendIdleSecs != 20 {
		t.Errorf("MaxSendIdleSecs not filled: %d", cfg.MaxSendIdleSecs)
	}
	if cfg.MaxAttachmentConcurrent != 12 {
		t.Errorf("MaxAttachmentConcurrent not filled: %d", cfg.MaxAttachmentConcurrent)
	}
}
