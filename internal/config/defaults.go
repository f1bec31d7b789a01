package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInitialDelay     = 1 * time.Second
	DefaultMultiplier       = 2.0
	DefaultMaxAttempts      = 5
	DefaultConnectTimeout   = 15 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPingTimeout      = 90 * time.Second
	DefaultStreamBuffer     = 1000
	DefaultBatchSize        = 500
	DefaultFlushInterval    = 1 * time.Second
	DefaultJournalBuffer    = 10000
	DefaultJournalTable     = "stream_messages"
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultHealthPath       = "/health"
	DefaultLogLevel         = "info"
)

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = "livetail"
	}

	// Stream defaults
	if c.Stream.InitialDelay == 0 {
		c.Stream.InitialDelay = DefaultInitialDelay
	}
	if c.Stream.Multiplier == 0 {
		c.Stream.Multiplier = DefaultMultiplier
	}
	if c.Stream.MaxAttempts == 0 {
		c.Stream.MaxAttempts = DefaultMaxAttempts
	}
	if c.Stream.ConnectTimeout == 0 {
		c.Stream.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Stream.HandshakeTimeout == 0 {
		c.Stream.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.PingTimeout == 0 {
		c.Stream.PingTimeout = DefaultPingTimeout
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBuffer
	}

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultJournalBuffer
	}
	if c.Journal.Table == "" {
		c.Journal.Table = DefaultJournalTable
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	if c.Health.Path == "" {
		c.Health.Path = DefaultHealthPath
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
