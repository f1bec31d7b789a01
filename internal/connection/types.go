package connection

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrStaleConnection  = errors.New("connection stale (no ping)")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrInvalidEndpoint  = errors.New("invalid endpoint")
	ErrMalformedMessage = errors.New("malformed message")
)

// Topic identifies a stream of server-pushed events. Topics are compared by
// exact string equality; wildcard or parameterized topics are opaque here.
type Topic = string

// Message is an inbound event delivered verbatim to listeners.
type Message struct {
	Topic      Topic           // Topic the server published on
	Data       json.RawMessage // Undecoded payload, see Decode
	ReceivedAt time.Time       // Local timestamp when the frame was read
}

// Handler receives every inbound message regardless of topic.
type Handler func(Message)

// TimestampedMessage wraps raw frame data with its receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Command types sent to the server.
const (
	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"
)

// Command is a subscription command sent to the server.
type Command struct {
	Type   string   `json:"type"` // "subscribe" or "unsubscribe"
	Topics []string `json:"topics"`
}

// inboundFrame is the wire shape of a server-pushed message.
type inboundFrame struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// ReadyState mirrors the state of the underlying transport.
type ReadyState int

const (
	ReadyConnecting ReadyState = iota
	ReadyOpen
	ReadyClosed
)

func (s ReadyState) String() string {
	switch s {
	case ReadyConnecting:
		return "CONNECTING"
	case ReadyOpen:
		return "OPEN"
	default:
		return "CLOSED"
	}
}

// State is the Manager lifecycle state.
type State int

const (
	// StateIdle means no connection and no retry pending.
	StateIdle State = iota
	StateConnecting
	StateOpen
	// StateReconnecting means a reconnect timer is pending.
	StateReconnecting
	// StateGivenUp means reconnect attempts were exhausted.
	StateGivenUp
	// StateDisconnected is terminal, entered through Disconnect.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateGivenUp:
		return "given_up"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// TransportConfig configures the WebSocket transport.
type TransportConfig struct {
	HandshakeTimeout time.Duration // Max time for the WebSocket upgrade
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // Interval between keepalive pings
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	BufferSize       int           // Inbound frame channel buffer size
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		BufferSize:       1000,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	URL            string        // Streaming endpoint (e.g., wss://app.brikk.ai/ws)
	InitialDelay   time.Duration // Delay before the first reconnect attempt
	Multiplier     float64       // Backoff growth per attempt
	MaxAttempts    int           // Reconnect attempts before giving up
	ConnectTimeout time.Duration // Upper bound on a single connect attempt
}

// DefaultManagerConfig returns the reference reconnect policy.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		InitialDelay:   1 * time.Second,
		Multiplier:     2,
		MaxAttempts:    5,
		ConnectTimeout: 15 * time.Second,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State            State
	Attempts         int
	NextDelay        time.Duration
	Topics           int
	Listeners        int
	MessagesReceived int64
	MessagesDropped  int64
	ListenerPanics   int64
	Connects         int64
}
