package journal

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Row is one archived message.
type Row struct {
	SessionID  uuid.UUID       // Per-journal run, groups rows from one process
	InstanceID string          // config instance.id
	Topic      string          // Topic the server published on
	Data       json.RawMessage // Payload as received
	ReceivedAt time.Time       // Local receive timestamp
}

// Config configures a Journal.
type Config struct {
	InstanceID    string
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int // Initial capacity of the intake buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		InstanceID:    "livetail",
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	SessionID uuid.UUID
	Received  int64 // Messages accepted by the handler
	Dropped   int64 // Messages arriving after Stop
	Written   int64 // Rows committed to the store
	Failed    int64 // Rows lost to failed flushes
	Flushes   int64
}
