package chat

// Config is the closed set of runtime tunables. Zero values are replaced by
// the defaults below when the client starts, so a partially filled Config
// is safe.
type Config struct {
	MaxRetry                           int
	MaxSendIdleSecs                    int
	MaxRecallSecs                      int
	MaxConversationLimit               int
	MaxLogsLimit                       int
	MaxSyncLogsMaxCount                int
	MaxConnectIntervalSecs             int
	MaxAttachmentConcurrent            int
	MaxIncomingLogCacheCount           int
	MaxSyncLogsLimit                   int
	KeepaliveIntervalSecs              int
	PingIntervalSecs                   int
	MediaProgressIntervalMs            int
	ConversationCacheExpireSecs        int
	UserCacheExpireSecs                int
	RemovedConversationCacheExpireSecs int
	PingTimeoutSecs                    int
}

// DefaultConfig returns a Config with every tunable at its default.
func DefaultConfig() *Config {
	return &Config{
		MaxRetry:                           2,
		MaxSendIdleSecs:                    20,
		MaxRecallSecs:                      120,
		MaxConversationLimit:               1000,
		MaxLogsLimit:                       100,
		MaxSyncLogsMaxCount:                200,
		MaxConnectIntervalSecs:             5,
		MaxAttachmentConcurrent:            12,
		MaxIncomingLogCacheCount:           300,
		MaxSyncLogsLimit:                   500,
		KeepaliveIntervalSecs:              50,
		PingIntervalSecs:                   30,
		MediaProgressIntervalMs:            300,
		ConversationCacheExpireSecs:        60,
		UserCacheExpireSecs:                60,
		RemovedConversationCacheExpireSecs: 1,
		PingTimeoutSecs:                    5,
	}
}

// FillDefaults replaces every zero field with its default value.
func (c *Config) FillDefaults() {
	def := DefaultConfig()
	if c.MaxRetry == 0 {
		c.MaxRetry = def.MaxRetry
	}
	if c.MaxSendIdleSecs == 0 {
		c.MaxSendIdleSecs = def.MaxSendIdleSecs
	}
	if c.MaxRecallSecs == 0 {
		c.MaxRecallSecs = def.MaxRecallSecs
	}
	if c.MaxConversationLimit == 0 {
		c.MaxConversationLimit = def.MaxConversationLimit
	}
	if c.MaxLogsLimit == 0 {
		c.MaxLogsLimit = def.MaxLogsLimit
	}
	if c.MaxSyncLogsMaxCount == 0 {
		c.MaxSyncLogsMaxCount = def.MaxSyncLogsMaxCount
	}
	if c.MaxConnectIntervalSecs == 0 {
		c.MaxConnectIntervalSecs = def.MaxConnectIntervalSecs
	}
	if c.MaxAttachmentConcurrent == 0 {
		c.MaxAttachmentConcurrent = def.MaxAttachmentConcurrent
	}
	if c.MaxIncomingLogCacheCount == 0 {
		c.MaxIncomingLogCacheCount = def.MaxIncomingLogCacheCount
	}
	if c.MaxSyncLogsLimit == 0 {
		c.MaxSyncLogsLimit = def.MaxSyncLogsLimit
	}
	if c.KeepaliveIntervalSecs == 0 {
		c.KeepaliveIntervalSecs = def.KeepaliveIntervalSecs
	}
	if c.PingIntervalSecs == 0 {
		c.PingIntervalSecs = def.PingIntervalSecs
	}
	if c.MediaProgressIntervalMs == 0 {
		c.MediaProgressIntervalMs = def.MediaProgressIntervalMs
	}
	if c.ConversationCacheExpireSecs == 0 {
		c.ConversationCacheExpireSecs = def.ConversationCacheExpireSecs
	}
	if c.UserCacheExpireSecs == 0 {
		c.UserCacheExpireSecs = def.UserCacheExpireSecs
	}
	if c.RemovedConversationCacheExpireSecs == 0 {
		c.RemovedConversationCacheExpireSecs = def.RemovedConversationCacheExpireSecs
	}
	if c.PingTimeoutSecs == 0 {
		c.PingTimeoutSecs = def.PingTimeoutSecs
	}
}
