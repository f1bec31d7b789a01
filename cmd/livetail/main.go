// livetail connects to a Brikk live-update endpoint, subscribes to topics and
// prints every message it receives. With journal.enabled it also archives
// messages to Postgres.
//
// Usage: go run ./cmd/livetail --config configs/livetail.example.yaml --topic agents.status
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/brikk/livefeed/internal/auth"
	"github.com/brikk/livefeed/internal/config"
	"github.com/brikk/livefeed/internal/connection"
	"github.com/brikk/livefeed/internal/database"
	"github.com/brikk/livefeed/internal/journal"
	"github.com/brikk/livefeed/internal/version"
)

func main() {
	configPath := pflag.StringP("config", "c", "configs/livetail.example.yaml", "path to config file")
	verbose := pflag.BoolP("verbose", "v", false, "print full message data")
	topics := pflag.StringArrayP("topic", "t", nil, "topic to subscribe to (repeatable, replaces stream.topics)")
	pflag.Parse()

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if len(*topics) > 0 {
		cfg.Stream.Topics = *topics
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting livetail",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"config", *configPath,
	)

	if err := run(cfg, *verbose, logger); err != nil {
		logger.Error("livetail failed", "error", err)
		os.Exit(1)
	}

	logger.Info("livetail stopped")
}

func run(cfg *config.Config, verbose bool, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	creds, err := auth.LoadCredentials(cfg.Auth.Token, cfg.Auth.TokenPath, cfg.Auth.TenantID)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if creds.Anonymous() {
		logger.Warn("no auth token configured, connecting anonymously")
	} else {
		logger.Info("using credentials", "credentials", creds.String())
	}

	mgr := newManager(cfg, logger)
	creds.Apply(mgr)

	unlisten := mgr.OnMessage(printMessage(os.Stdout, verbose))
	defer unlisten()

	var (
		jrnl *journal.Journal
		pool *pgxpool.Pool
	)
	if cfg.Journal.Enabled {
		jrnl, pool, err = startJournal(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		mgr.OnMessage(jrnl.Handler())
	}

	mgr.Subscribe(cfg.Stream.Topics...)
	mgr.Connect()

	var server *http.Server
	if cfg.Health.Port > 0 {
		server = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
			Handler:           newHealthHandler(cfg.Health.Path, mgr, journalStatsOrNil(jrnl)),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if server != nil {
		g.Go(func() error {
			logger.Info("starting health server", "port", cfg.Health.Port, "path", cfg.Health.Path)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		logStats(gctx, mgr, jrnl, logger)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("shutting down...")
		mgr.Disconnect()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		// Journal drains before the deferred pool close.
		if jrnl != nil {
			if err := jrnl.Stop(shutdownCtx); err != nil {
				logger.Error("journal stop failed", "error", err)
			}
		}
		if server != nil {
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("health server shutdown failed", "error", err)
			}
		}
		return nil
	})

	logger.Info("streaming started - press Ctrl+C to stop",
		"url", cfg.Stream.URL,
		"topics", cfg.Stream.Topics,
	)

	return g.Wait()
}

func newManager(cfg *config.Config, logger *slog.Logger) *connection.Manager {
	header := http.Header{}
	if cfg.Stream.Origin != "" {
		header.Set("Origin", cfg.Stream.Origin)
	}

	dialer := connection.NewWebSocketDialer(connection.TransportConfig{
		HandshakeTimeout: cfg.Stream.HandshakeTimeout,
		WriteTimeout:     cfg.Stream.WriteTimeout,
		PingInterval:     cfg.Stream.PingInterval,
		PingTimeout:      cfg.Stream.PingTimeout,
		BufferSize:       cfg.Stream.BufferSize,
	}, header, logger)

	return connection.NewManager(connection.ManagerConfig{
		URL:            cfg.Stream.URL,
		InitialDelay:   cfg.Stream.InitialDelay,
		Multiplier:     cfg.Stream.Multiplier,
		MaxAttempts:    cfg.Stream.MaxAttempts,
		ConnectTimeout: cfg.Stream.ConnectTimeout,
	}, dialer, logger)
}

func startJournal(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*journal.Journal, *pgxpool.Pool, error) {
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	store := journal.NewPGStore(pool, cfg.Journal.Table)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	j := journal.New(journal.Config{
		InstanceID:    cfg.Instance.ID,
		BatchSize:     cfg.Journal.BatchSize,
		FlushInterval: cfg.Journal.FlushInterval,
		BufferSize:    cfg.Journal.BufferSize,
	}, store, logger)

	if err := j.Start(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("start journal: %w", err)
	}

	logger.Info("journal enabled", "table", cfg.Journal.Table, "session_id", j.SessionID())
	return j, pool, nil
}

func logStats(ctx context.Context, mgr *connection.Manager, jrnl *journal.Journal, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := mgr.Stats()
			attrs := []any{
				"state", s.State,
				"topics", s.Topics,
				"received", s.MessagesReceived,
				"dropped", s.MessagesDropped,
				"connects", s.Connects,
			}
			if jrnl != nil {
				js := jrnl.Stats()
				attrs = append(attrs,
					"journal_written", js.Written,
					"journal_failed", js.Failed,
				)
			}
			logger.Info("stats", attrs...)
		}
	}
}
