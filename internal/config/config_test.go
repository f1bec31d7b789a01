package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: dashboard-tail
stream:
  url: wss://app.brikk.test/ws
  topics:
    - agents.*
    - workflow.42.status
  max_attempts: 3
auth:
  tenant_id: acme
journal:
  enabled: true
database:
  host: localhost
  port: 5432
  name: brikk
  user: brikk
  password: brikkpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "dashboard-tail" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "dashboard-tail")
	}
	if cfg.Stream.URL != "wss://app.brikk.test/ws" {
		t.Errorf("Stream.URL = %q", cfg.Stream.URL)
	}
	if len(cfg.Stream.Topics) != 2 || cfg.Stream.Topics[1] != "workflow.42.status" {
		t.Errorf("Stream.Topics = %v", cfg.Stream.Topics)
	}
	if cfg.Stream.MaxAttempts != 3 {
		t.Errorf("Stream.MaxAttempts = %d, want 3", cfg.Stream.MaxAttempts)
	}
	if !cfg.Journal.Enabled {
		t.Error("Journal.Enabled = false, want true")
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_BRIKK_TOKEN", "tok-secret")
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
stream:
  url: wss://app.brikk.test/ws
auth:
  token: ${TEST_BRIKK_TOKEN}
database:
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Auth.Token != "tok-secret" {
		t.Errorf("Auth.Token = %q, want %q", cfg.Auth.Token, "tok-secret")
	}
	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
stream:
  url: wss://app.brikk.test/ws
  connect_timeout: 3s
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Stream.InitialDelay != DefaultInitialDelay {
		t.Errorf("Stream.InitialDelay = %v, want default %v", cfg.Stream.InitialDelay, DefaultInitialDelay)
	}
	if cfg.Stream.Multiplier != DefaultMultiplier {
		t.Errorf("Stream.Multiplier = %v, want default %v", cfg.Stream.Multiplier, DefaultMultiplier)
	}
	if cfg.Stream.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("Stream.MaxAttempts = %d, want default %d", cfg.Stream.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.Stream.ConnectTimeout != 3*time.Second {
		t.Errorf("Stream.ConnectTimeout = %v, want 3s", cfg.Stream.ConnectTimeout)
	}
	if cfg.Journal.Table != DefaultJournalTable {
		t.Errorf("Journal.Table = %q, want default %q", cfg.Journal.Table, DefaultJournalTable)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Health.Path != DefaultHealthPath {
		t.Errorf("Health.Path = %q, want default %q", cfg.Health.Path, DefaultHealthPath)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want default %q", cfg.Log.Level, DefaultLogLevel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("stream: [unterminated")); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{Stream: StreamConfig{URL: "wss://app.brikk.test/ws"}}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing stream url",
			mutate:  func(c *Config) { c.Stream.URL = "" },
			wantErr: "stream.url is required",
		},
		{
			name:    "http scheme",
			mutate:  func(c *Config) { c.Stream.URL = "https://app.brikk.test/ws" },
			wantErr: `stream.url scheme must be ws or wss, got "https"`,
		},
		{
			name:    "multiplier below one",
			mutate:  func(c *Config) { c.Stream.Multiplier = 0.5 },
			wantErr: "stream.multiplier must be >= 1, got 0.5",
		},
		{
			name:    "negative ping timeout",
			mutate:  func(c *Config) { c.Stream.PingTimeout = -time.Second },
			wantErr: "stream.ping_timeout must be > 0, got -1s",
		},
		{
			name:    "negative write timeout",
			mutate:  func(c *Config) { c.Stream.WriteTimeout = -5 * time.Second },
			wantErr: "stream.write_timeout must be > 0, got -5s",
		},
		{
			name:    "negative connect timeout",
			mutate:  func(c *Config) { c.Stream.ConnectTimeout = -time.Millisecond },
			wantErr: "stream.connect_timeout must be > 0, got -1ms",
		},
		{
			name:    "negative ping interval",
			mutate:  func(c *Config) { c.Stream.PingInterval = -time.Second },
			wantErr: "stream.ping_interval must be > 0, got -1s",
		},
		{
			name: "ping timeout not above interval",
			mutate: func(c *Config) {
				c.Stream.PingInterval = 30 * time.Second
				c.Stream.PingTimeout = 30 * time.Second
			},
			wantErr: "stream.ping_timeout (30s) must exceed ping_interval (30s)",
		},
		{
			name:    "empty topic",
			mutate:  func(c *Config) { c.Stream.Topics = []string{"agents.*", " "} },
			wantErr: "stream.topics[1] is empty",
		},
		{
			name: "token and token path",
			mutate: func(c *Config) {
				c.Auth.Token = "a"
				c.Auth.TokenPath = "/run/secrets/token"
			},
			wantErr: "auth.token and auth.token_path are mutually exclusive",
		},
		{
			name:    "journal without database host",
			mutate:  func(c *Config) { c.Journal.Enabled = true },
			wantErr: "database.host is required",
		},
		{
			name: "journal bad table",
			mutate: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Table = "messages; drop table users"
			},
			wantErr: `journal.table "messages; drop table users" is not a valid identifier`,
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Journal.Enabled = true
				c.Database = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "database.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "health port out of range",
			mutate:  func(c *Config) { c.Health.Port = 70000 },
			wantErr: "health.port must be between 0 and 65535, got 70000",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: `log.level "loud" is not one of debug, info, warn, error`,
		},
		{
			name: "valid config with journal",
			mutate: func(c *Config) {
				c.Journal.Enabled = true
				c.Database = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 4, MinConns: 1}
			},
			wantErr: "",
		},
		{
			name:    "valid config without journal",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLevel(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestExampleConfig(t *testing.T) {
	t.Setenv("BRIKK_LIVE_TOKEN", "tok")
	cfg, err := LoadAndValidate(filepath.Join("..", "..", "configs", "livetail.example.yaml"))
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Stream.URL == "" || len(cfg.Stream.Topics) == 0 {
		t.Errorf("example config incomplete: %+v", cfg.Stream)
	}
}
