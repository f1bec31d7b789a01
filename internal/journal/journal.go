package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/chanx"

	"github.com/brikk/livefeed/internal/connection"
)

// Store persists batches of rows.
type Store interface {
	InsertMessages(ctx context.Context, rows []Row) (int64, error)
}

// Journal consumes connection messages and writes them to a Store in batches.
type Journal struct {
	cfg     Config
	store   Store
	logger  *slog.Logger
	session uuid.UUID

	// Intake; In is closed by Stop so the consumer drains and exits.
	intake       *chanx.UnboundedChan[Row]
	intakeCancel context.CancelFunc

	wg sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
	batch   []Row
	stats   Stats
}

// New creates a Journal. Call Start before registering Handler.
func New(cfg Config, store Store, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = def.InstanceID
	}

	session := uuid.New()
	return &Journal{
		cfg:     cfg,
		store:   store,
		logger:  logger.With("component", "journal", "session_id", session),
		session: session,
		batch:   make([]Row, 0, cfg.BatchSize),
		stats:   Stats{SessionID: session},
	}
}

// Start begins consuming queued messages.
func (j *Journal) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.started {
		return nil
	}
	j.started = true

	// Not tied to ctx: cancelling it would drop queued rows before the final flush.
	intakeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j.intake = chanx.NewUnboundedChan[Row](intakeCtx, j.cfg.BufferSize)
	j.intakeCancel = cancel

	j.wg.Add(1)
	go j.consumeLoop()

	j.logger.Info("journal started",
		"batch_size", j.cfg.BatchSize,
		"flush_interval", j.cfg.FlushInterval,
	)
	return nil
}

// Handler returns a listener that queues every message.
func (j *Journal) Handler() connection.Handler {
	return j.Record
}

// Record queues one message. It never blocks on the store.
func (j *Journal) Record(msg connection.Message) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.started || j.stopped {
		j.stats.Dropped++
		return
	}
	j.stats.Received++

	j.intake.In <- Row{
		SessionID:  j.session,
		InstanceID: j.cfg.InstanceID,
		Topic:      msg.Topic,
		Data:       msg.Data,
		ReceivedAt: msg.ReceivedAt,
	}
}

// Stop drains queued messages, performs a final flush and stops the consumer.
// If ctx expires first, rows still queued are discarded.
func (j *Journal) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.started || j.stopped {
		j.mu.Unlock()
		return nil
	}
	j.stopped = true
	close(j.intake.In)
	j.mu.Unlock()

	j.logger.Info("stopping journal")

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		j.logger.Info("journal stopped")
	case <-ctx.Done():
		j.logger.Warn("journal stop timed out")
		j.intakeCancel()
		<-done
	}
	j.intakeCancel()

	return nil
}

// Stats returns current statistics.
func (j *Journal) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}

// SessionID identifies this journal run.
func (j *Journal) SessionID() uuid.UUID {
	return j.session
}

// consumeLoop batches rows and flushes on size, on the ticker, and on exit.
func (j *Journal) consumeLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case row, ok := <-j.intake.Out:
			if !ok {
				j.flush()
				return
			}
			j.mu.Lock()
			j.batch = append(j.batch, row)
			full := len(j.batch) >= j.cfg.BatchSize
			j.mu.Unlock()

			if full {
				j.flush()
			}
		case <-ticker.C:
			j.flush()
		}
	}
}

// flush writes the current batch to the store.
func (j *Journal) flush() {
	j.mu.Lock()
	if len(j.batch) == 0 {
		j.mu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := j.batch
	j.batch = make([]Row, 0, j.cfg.BatchSize)
	j.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	n, err := j.store.InsertMessages(ctx, batch)

	j.mu.Lock()
	j.stats.Flushes++
	if err != nil {
		j.stats.Failed += int64(len(batch))
	} else {
		j.stats.Written += n
	}
	j.mu.Unlock()

	if err != nil {
		j.logger.Error("batch insert failed", "error", err, "count", len(batch))
		return
	}

	j.logger.Debug("flushed messages",
		"count", n,
		"duration", time.Since(start),
	)
}
