package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var columns = []string{"session_id", "instance_id", "topic", "data", "received_at"}

// PGStore writes rows into a PostgreSQL table with COPY.
type PGStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPGStore creates a store writing to table.
func NewPGStore(pool *pgxpool.Pool, table string) *PGStore {
	return &PGStore{pool: pool, table: table}
}

// EnsureSchema creates the journal table and its topic index if missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaSQL(s.table) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// InsertMessages copies rows into the table and returns the number written.
func (s *PGStore) InsertMessages(ctx context.Context, rows []Row) (int64, error) {
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{s.table}, columns, pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		return copyValues(rows[i]), nil
	}))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", s.table, err)
	}
	return n, nil
}

func copyValues(r Row) []any {
	var data any
	if len(r.Data) > 0 {
		data = r.Data
	}
	return []any{[16]byte(r.SessionID), r.InstanceID, r.Topic, data, r.ReceivedAt}
}

func schemaSQL(table string) []string {
	ident := pgx.Identifier{table}.Sanitize()
	index := pgx.Identifier{table + "_topic_received_at_idx"}.Sanitize()
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + ident + ` (
			id          BIGSERIAL PRIMARY KEY,
			session_id  UUID NOT NULL,
			instance_id TEXT NOT NULL,
			topic       TEXT NOT NULL,
			data        JSONB,
			received_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ` + index + ` ON ` + ident + ` (topic, received_at)`,
	}
}
