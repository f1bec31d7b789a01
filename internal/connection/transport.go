package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is a single full-duplex connection to the streaming endpoint.
type Transport interface {
	// Send writes one text frame.
	Send(data []byte) error

	// Messages returns inbound frames in arrival order. The channel is
	// closed when the connection ends for any reason.
	Messages() <-chan TimestampedMessage

	// Err reports why the connection ended. It is nil after Close and
	// only meaningful once Messages is closed.
	Err() error

	// Close gracefully closes the connection. Safe to call more than once.
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Transport, error)
}

// WebSocketDialer dials gorilla/websocket connections.
type WebSocketDialer struct {
	cfg    TransportConfig
	header http.Header
	logger *slog.Logger
}

// NewWebSocketDialer creates a dialer. Header is sent with every upgrade request.
func NewWebSocketDialer(cfg TransportConfig, header http.Header, logger *slog.Logger) *WebSocketDialer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultTransportConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if header == nil {
		header = http.Header{}
	}
	return &WebSocketDialer{cfg: cfg, header: header, logger: logger}
}

// Dial establishes the WebSocket connection and starts its read loop.
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Transport, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}

	header := d.header.Clone()
	header.Set("Accept", "application/json")

	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", redactURL(endpoint), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", redactURL(endpoint), err)
	}

	t := &wsTransport{
		cfg:        d.cfg,
		logger:     d.logger,
		conn:       conn,
		messages:   make(chan TimestampedMessage, d.cfg.BufferSize),
		done:       make(chan struct{}),
		lastPingAt: time.Now(),
	}

	// Server pings refresh liveness; we answer with a pong.
	conn.SetPingHandler(func(data string) error {
		t.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	conn.SetPongHandler(func(string) error {
		t.touch()
		return nil
	})

	go t.readLoop()
	if d.cfg.PingInterval > 0 {
		go t.heartbeatLoop()
	}

	d.logger.Debug("websocket connected", "url", redactURL(endpoint))

	return t, nil
}

// wsTransport implements Transport over a gorilla connection.
type wsTransport struct {
	cfg    TransportConfig
	logger *slog.Logger

	conn *websocket.Conn

	messages chan TimestampedMessage
	done     chan struct{}
	doneOnce sync.Once

	// Write serialization
	writeMu sync.Mutex

	mu         sync.Mutex
	lastPingAt time.Time
	closed     bool
	err        error
}

func (t *wsTransport) Send(data []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrNotConnected
	}
	t.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Messages() <-chan TimestampedMessage {
	return t.messages
}

func (t *wsTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close sends a normal closure and releases the socket. Closing twice
// returns ErrAlreadyClosed.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrAlreadyClosed
	}
	t.closed = true
	t.mu.Unlock()

	t.stop()

	t.writeMu.Lock()
	t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	t.writeMu.Unlock()

	return t.conn.Close()
}

// stop releases the heartbeat; safe from both Close and readLoop.
func (t *wsTransport) stop() {
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *wsTransport) touch() {
	t.mu.Lock()
	t.lastPingAt = time.Now()
	t.mu.Unlock()
}

// fail records the first error that ended the connection, unless Close was called.
func (t *wsTransport) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.err != nil {
		return
	}
	t.err = err
}

// readLoop is the only writer of t.messages and closes it on exit.
// Exiting also stops the heartbeat, however the connection ended.
func (t *wsTransport) readLoop() {
	defer close(t.messages)
	defer t.stop()

	for {
		_, data, err := t.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			t.fail(err)
			t.conn.Close()
			return
		}

		select {
		case t.messages <- TimestampedMessage{Data: data, ReceivedAt: receivedAt}:
		case <-t.done:
			return
		}
	}
}

// heartbeatLoop pings the server and tears the connection down when it goes stale.
func (t *wsTransport) heartbeatLoop() {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := t.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(t.cfg.WriteTimeout))
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Debug("failed to send ping", "error", err)
			}

			if t.cfg.PingTimeout <= 0 {
				continue
			}

			t.mu.Lock()
			lastPing := t.lastPingAt
			t.mu.Unlock()

			if time.Since(lastPing) > t.cfg.PingTimeout {
				t.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", t.cfg.PingTimeout,
				)
				t.fail(ErrStaleConnection)
				// Unblocks ReadMessage so readLoop closes the channel.
				t.conn.Close()
				return
			}
		}
	}
}

// redactURL hides credential query parameters for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
