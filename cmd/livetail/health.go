package main

import (
	"encoding/json"
	"net/http"

	"github.com/brikk/livefeed/internal/connection"
	"github.com/brikk/livefeed/internal/journal"
	"github.com/brikk/livefeed/internal/version"
)

// streamStatus is the read side of *connection.Manager.
type streamStatus interface {
	IsConnected() bool
	ReadyState() connection.ReadyState
	Topics() []connection.Topic
	Stats() connection.ManagerStats
}

type journalStats interface {
	Stats() journal.Stats
}

// journalStatsOrNil keeps a nil *journal.Journal from becoming a non-nil interface.
func journalStatsOrNil(j *journal.Journal) journalStats {
	if j == nil {
		return nil
	}
	return j
}

type healthResponse struct {
	Status  string         `json:"status"`
	Version version.Info   `json:"version"`
	Stream  streamHealth   `json:"stream"`
	Journal *journalHealth `json:"journal,omitempty"`
}

type streamHealth struct {
	State            string   `json:"state"`
	ReadyState       string   `json:"ready_state"`
	Topics           []string `json:"topics"`
	Attempts         int      `json:"attempts"`
	NextDelay        string   `json:"next_delay,omitempty"`
	Listeners        int      `json:"listeners"`
	Connects         int64    `json:"connects"`
	MessagesReceived int64    `json:"messages_received"`
	MessagesDropped  int64    `json:"messages_dropped"`
	ListenerPanics   int64    `json:"listener_panics"`
}

type journalHealth struct {
	SessionID string `json:"session_id"`
	Received  int64  `json:"received"`
	Dropped   int64  `json:"dropped"`
	Written   int64  `json:"written"`
	Failed    int64  `json:"failed"`
	Flushes   int64  `json:"flushes"`
}

// newHealthHandler serves stream and journal status at path. It answers 503
// while the stream is not open.
func newHealthHandler(path string, stream streamStatus, jrnl journalStats) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		stats := stream.Stats()
		topics := stream.Topics()
		if topics == nil {
			topics = []string{}
		}

		health := healthResponse{
			Status:  "healthy",
			Version: version.Get(),
			Stream: streamHealth{
				State:            stats.State.String(),
				ReadyState:       stream.ReadyState().String(),
				Topics:           topics,
				Attempts:         stats.Attempts,
				Listeners:        stats.Listeners,
				Connects:         stats.Connects,
				MessagesReceived: stats.MessagesReceived,
				MessagesDropped:  stats.MessagesDropped,
				ListenerPanics:   stats.ListenerPanics,
			},
		}
		if stats.NextDelay > 0 {
			health.Stream.NextDelay = stats.NextDelay.String()
		}

		if jrnl != nil {
			js := jrnl.Stats()
			health.Journal = &journalHealth{
				SessionID: js.SessionID.String(),
				Received:  js.Received,
				Dropped:   js.Dropped,
				Written:   js.Written,
				Failed:    js.Failed,
				Flushes:   js.Flushes,
			}
		}

		if !stream.IsConnected() {
			health.Status = "unhealthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
