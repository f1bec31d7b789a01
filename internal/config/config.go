package config

import "time"

// Config is the root configuration for a livetail instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Stream   StreamConfig   `yaml:"stream"`
	Auth     AuthConfig     `yaml:"auth"`
	Journal  JournalConfig  `yaml:"journal"`
	Database DBConfig       `yaml:"database"`
	Health   HealthConfig   `yaml:"health"`
	Log      LogConfig      `yaml:"log"`
}

// InstanceConfig identifies this process in logs and journal rows.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// StreamConfig holds the live-update endpoint and reconnect policy.
type StreamConfig struct {
	URL              string        `yaml:"url"`
	Topics           []string      `yaml:"topics"`
	Origin           string        `yaml:"origin"` // Sent as the Origin header when set
	InitialDelay     time.Duration `yaml:"initial_delay"`
	Multiplier       float64       `yaml:"multiplier"`
	MaxAttempts      int           `yaml:"max_attempts"` // -1 disables reconnection
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
}

// AuthConfig holds the bearer credential and tenant sent on connect.
type AuthConfig struct {
	Token     string `yaml:"token"`
	TokenPath string `yaml:"token_path"` // Read when token is empty
	TenantID  string `yaml:"tenant_id"`
}

// JournalConfig controls archiving of received messages to Postgres.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Table         string        `yaml:"table"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HealthConfig holds the health endpoint settings. Port 0 disables it.
type HealthConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig selects the slog level: debug, info, warn or error.
type LogConfig struct {
	Level string `yaml:"level"`
}
