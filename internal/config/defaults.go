package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 5 * time.Second
	DefaultSettleDelay          = 500 * time.Millisecond
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultAuditBatchSize       = 200
	DefaultAuditFlushInterval   = 2 * time.Second
	DefaultAuditQueueSize       = 2000
	DefaultStatusPollInterval   = 5 * time.Second
	DefaultHealthPort           = 8080
	DefaultLogLevel             = "info"
)

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.HandshakeTimeout == 0 {
		c.Server.HandshakeTimeout = DefaultHandshakeTimeout
	}

	// Reconnect defaults
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultMaxReconnectAttempts
	}
	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = DefaultReconnectBaseDelay
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultReconnectMaxDelay
	}
	if c.Reconnect.SettleDelay == 0 {
		c.Reconnect.SettleDelay = DefaultSettleDelay
	}

	// Audit defaults
	if c.Audit.Database.Port == 0 {
		c.Audit.Database.Port = DefaultDBPort
	}
	if c.Audit.Database.SSLMode == "" {
		c.Audit.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = DefaultAuditBatchSize
	}
	if c.Audit.FlushInterval == 0 {
		c.Audit.FlushInterval = DefaultAuditFlushInterval
	}
	if c.Audit.QueueSize == 0 {
		c.Audit.QueueSize = DefaultAuditQueueSize
	}

	// Status defaults
	if c.Status.PollInterval == 0 {
		c.Status.PollInterval = DefaultStatusPollInterval
	}
	if c.Status.HealthPort == 0 {
		c.Status.HealthPort = DefaultHealthPort
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
