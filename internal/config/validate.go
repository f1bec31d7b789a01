package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.Stream.validate(); err != nil {
		return err
	}

	if c.Auth.Token != "" && c.Auth.TokenPath != "" {
		return errors.New("auth.token and auth.token_path are mutually exclusive")
	}

	if c.Journal.Enabled {
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
		if c.Journal.FlushInterval <= 0 {
			return errors.New("journal.flush_interval must be > 0")
		}
		if !identPattern.MatchString(c.Journal.Table) {
			return fmt.Errorf("journal.table %q is not a valid identifier", c.Journal.Table)
		}
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	if c.Health.Port < 0 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 0 and 65535, got %d", c.Health.Port)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

func (s *StreamConfig) validate() error {
	if s.URL == "" {
		return errors.New("stream.url is required")
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("stream.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("stream.url scheme must be ws or wss, got %q", u.Scheme)
	}
	if s.Multiplier < 1 {
		return fmt.Errorf("stream.multiplier must be >= 1, got %v", s.Multiplier)
	}
	if s.InitialDelay <= 0 {
		return errors.New("stream.initial_delay must be > 0")
	}
	if s.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"connect_timeout", s.ConnectTimeout},
		{"handshake_timeout", s.HandshakeTimeout},
		{"write_timeout", s.WriteTimeout},
		{"ping_interval", s.PingInterval},
		{"ping_timeout", s.PingTimeout},
	} {
		if d.value <= 0 {
			return fmt.Errorf("stream.%s must be > 0, got %v", d.name, d.value)
		}
	}
	if s.PingTimeout <= s.PingInterval {
		return fmt.Errorf("stream.ping_timeout (%v) must exceed ping_interval (%v)", s.PingTimeout, s.PingInterval)
	}
	for i, t := range s.Topics {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("stream.topics[%d] is empty", i)
		}
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// ParseLevel maps a log.level value to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", level)
	}
}
