package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// Manager maintains one live connection, keeps server-side subscriptions in
// sync with the desired topics, and fans inbound messages out to listeners.
//
// Failures are never returned to callers: connect errors, malformed frames
// and exhausted retries are logged, and IsConnected reports the outcome.
type Manager struct {
	cfg      ManagerConfig
	backoff  Backoff
	dialer   Dialer
	logger   *slog.Logger
	schedule scheduleFunc

	// Cancelled by Disconnect to abort an in-flight dial.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	transport Transport
	gen       uint64 // bumped per connect attempt and on Disconnect; stale events are ignored
	attempts  int
	nextDelay time.Duration
	retry     timer
	token     string
	tenantID  string
	topics    *topicSet

	listeners listenerRegistry
	sends     *sequencer
	stopped   atomic.Bool // set by Disconnect; checked before each delivery

	// Stats
	received atomic.Int64
	dropped  atomic.Int64
	panics   atomic.Int64
	connects atomic.Int64
}

// NewManager creates a Connection Manager. It does not connect; call Connect.
// A nil dialer uses a WebSocketDialer with default transport settings.
func NewManager(cfg ManagerConfig, dialer Dialer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = withDefaults(cfg)
	if dialer == nil {
		dialer = NewWebSocketDialer(DefaultTransportConfig(), nil, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		cfg:       cfg,
		backoff:   Backoff{Initial: cfg.InitialDelay, Multiplier: cfg.Multiplier},
		dialer:    dialer,
		logger:    logger.With("component", "connection"),
		schedule:  realSchedule,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateIdle,
		nextDelay: cfg.InitialDelay,
		topics:    newTopicSet(),
		sends:     newSequencer(),
	}
}

func withDefaults(cfg ManagerConfig) ManagerConfig {
	def := DefaultManagerConfig()
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	switch {
	case cfg.MaxAttempts == 0:
		cfg.MaxAttempts = def.MaxAttempts
	case cfg.MaxAttempts < 0:
		// Negative disables reconnection.
		cfg.MaxAttempts = 0
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	return cfg
}

// SetAuth sets the credential and tenant used on the next connect attempt.
// It does not reconnect an open connection.
func (m *Manager) SetAuth(token, tenantID string) {
	m.mu.Lock()
	m.token = token
	m.tenantID = tenantID
	m.mu.Unlock()
}

// Connect opens the connection unless one is already open or being opened.
// Completion is asynchronous; observe it with IsConnected or State.
//
// Calling Connect after retries were exhausted starts a fresh retry budget.
// Calling it while a reconnect is pending connects immediately.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectLocked(true)
}

func (m *Manager) connectLocked(manual bool) {
	switch m.state {
	case StateDisconnected:
		m.logger.Warn("connect called after disconnect")
		return
	case StateConnecting, StateOpen:
		return
	case StateGivenUp:
		if manual {
			m.attempts = 0
			m.nextDelay = m.cfg.InitialDelay
		}
	case StateReconnecting:
		if manual {
			m.stopRetryLocked()
		}
	}

	endpoint, err := m.endpointLocked()
	if err != nil {
		m.logger.Error("cannot create connection", "error", err)
		m.state = StateIdle
		return
	}

	m.gen++
	m.state = StateConnecting
	go m.run(m.gen, endpoint)
}

// endpointLocked builds the connect URL with token and tenant query parameters.
func (m *Manager) endpointLocked() (string, error) {
	if m.cfg.URL == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidEndpoint)
	}
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}

	q := u.Query()
	if m.token != "" {
		q.Set("token", m.token)
	}
	if m.tenantID != "" {
		q.Set("tenant", m.tenantID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// run dials and then pumps the transport until it closes.
func (m *Manager) run(gen uint64, endpoint string) {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ConnectTimeout)
	t, err := m.dialer.Dial(ctx, endpoint)
	cancel()

	replay, ok := m.opened(gen, t, err)
	if !ok {
		return
	}
	m.send(replay)

	for msg := range t.Messages() {
		m.dispatch(msg)
	}

	m.closed(gen, t)
}

// opened records the dial outcome and reports whether t should be pumped.
// The returned replay command, if any, must be sent after the lock is released.
func (m *Manager) opened(gen uint64, t Transport, err error) (*outbound, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.state != StateConnecting {
		if t != nil {
			t.Close()
		}
		return nil, false
	}

	if err != nil {
		m.logger.Warn("connection failed", "error", err, "attempt", m.attempts)
		m.handleCloseLocked()
		return nil, false
	}

	m.transport = t
	m.state = StateOpen
	m.attempts = 0
	m.nextDelay = m.cfg.InitialDelay
	m.connects.Add(1)

	topics := m.topics.list()
	m.logger.Info("connected", "topics", len(topics))
	if len(topics) == 0 {
		return nil, true
	}
	return m.prepareLocked(CmdSubscribe, topics), true
}

// closed handles the end of a transport that reached Open.
func (m *Manager) closed(gen uint64, t Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.transport != t {
		return
	}
	m.transport = nil

	if err := t.Err(); err != nil {
		m.logger.Warn("connection error", "error", err)
	}
	m.logger.Info("connection closed")
	m.handleCloseLocked()
}

// handleCloseLocked applies the reconnect policy after an unintended close.
func (m *Manager) handleCloseLocked() {
	if m.state == StateDisconnected {
		return
	}

	if m.attempts >= m.cfg.MaxAttempts {
		m.state = StateGivenUp
		m.logger.Error("giving up reconnecting", "attempts", m.attempts)
		return
	}

	m.attempts++
	delay := m.backoff.Delay(m.attempts)
	m.nextDelay = delay
	m.state = StateReconnecting

	gen := m.gen
	m.retry = m.schedule(delay, func() { m.fireRetry(gen) })

	m.logger.Info("scheduling reconnect",
		"attempt", m.attempts,
		"max_attempts", m.cfg.MaxAttempts,
		"delay", delay,
	)
}

func (m *Manager) fireRetry(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.state != StateReconnecting {
		return
	}
	m.retry = nil
	m.logger.Info("attempting reconnection", "attempt", m.attempts)
	m.connectLocked(false)
}

func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

// Subscribe adds topics to the desired set. When connected, topics that were
// not already desired are sent to the server in one subscribe command;
// otherwise they are sent with the replay on the next connect.
func (m *Manager) Subscribe(topics ...Topic) {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		m.logger.Debug("subscribe after disconnect ignored", "topics", topics)
		return
	}

	var out *outbound
	added := m.topics.add(topics)
	if len(added) > 0 && m.state == StateOpen {
		out = m.prepareLocked(CmdSubscribe, added)
	}
	m.mu.Unlock()

	m.send(out)
}

// Unsubscribe releases one reference on each topic. Topics whose last
// reference is released are removed and, when connected, unsubscribed on the
// server. Unknown topics are ignored.
func (m *Manager) Unsubscribe(topics ...Topic) {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}

	var out *outbound
	removed := m.topics.remove(topics)
	if len(removed) > 0 && m.state == StateOpen {
		out = m.prepareLocked(CmdUnsubscribe, removed)
	}
	m.mu.Unlock()

	m.send(out)
}

// outbound is an encoded command waiting for its turn on the wire.
type outbound struct {
	transport Transport
	ticket    uint64
	cmd       Command
	data      []byte
}

// prepareLocked encodes a command for the open transport and reserves its
// place in the send order. It returns nil when there is nothing to send.
func (m *Manager) prepareLocked(cmdType string, topics []Topic) *outbound {
	if m.transport == nil {
		return nil
	}

	cmd := Command{Type: cmdType, Topics: topics}
	data, err := json.Marshal(cmd)
	if err != nil {
		m.logger.Error("failed to encode command", "type", cmdType, "error", err)
		return nil
	}

	return &outbound{
		transport: m.transport,
		ticket:    m.sends.ticket(),
		cmd:       cmd,
		data:      data,
	}
}

// send writes o without holding m.mu, so a slow peer cannot stall observers.
// Commands still reach the wire in the order they were prepared.
func (m *Manager) send(o *outbound) {
	if o == nil {
		return
	}

	m.sends.do(o.ticket, func() {
		if err := o.transport.Send(o.data); err != nil {
			m.logger.Warn("failed to send command",
				"type", o.cmd.Type,
				"topics", o.cmd.Topics,
				"error", err,
			)
			return
		}
		m.logger.Debug("sent command", "type", o.cmd.Type, "topics", o.cmd.Topics)
	})
}

// OnMessage registers a listener for every inbound message and returns a
// function that removes it. The returned function may be called any number
// of times.
func (m *Manager) OnMessage(h Handler) func() {
	if h == nil {
		return func() {}
	}

	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return func() {}
	}
	id := m.listeners.add(h)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.listeners.remove(id)
		})
	}
}

// dispatch decodes one frame and delivers it to every listener.
func (m *Manager) dispatch(raw TimestampedMessage) {
	m.received.Add(1)

	var frame inboundFrame
	if err := json.Unmarshal(raw.Data, &frame); err != nil {
		m.dropped.Add(1)
		m.logger.Warn("dropping malformed message",
			"error", fmt.Errorf("%w: %v", ErrMalformedMessage, err),
			"bytes", len(raw.Data),
		)
		return
	}

	msg := Message{
		Topic:      frame.Topic,
		Data:       frame.Data,
		ReceivedAt: raw.ReceivedAt,
	}

	for _, h := range m.listeners.snapshot() {
		if m.stopped.Load() {
			return
		}
		m.deliver(h, msg)
	}
}

// deliver isolates one listener so a panic cannot stop delivery to the rest.
func (m *Manager) deliver(h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			m.panics.Add(1)
			m.logger.Error("listener panicked", "topic", msg.Topic, "panic", r)
		}
	}()
	h(msg)
}

// Disconnect closes the connection for good: the pending reconnect is
// cancelled, the transport closed, and all topics and listeners dropped.
// No delivery starts after Disconnect returns, though a listener already
// running may still finish. A new Manager is needed to connect again.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}

	m.state = StateDisconnected
	m.stopped.Store(true)
	m.gen++
	m.stopRetryLocked()

	t := m.transport
	m.transport = nil
	m.topics.reset()
	m.listeners.reset()
	m.cancel()
	m.mu.Unlock()

	if t != nil {
		if err := t.Close(); err != nil {
			m.logger.Debug("close transport", "error", err)
		}
	}

	m.logger.Info("disconnected")
}

// IsConnected reports whether the transport is open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateOpen
}

// ReadyState reports the transport state.
func (m *Manager) ReadyState() ReadyState {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateConnecting:
		return ReadyConnecting
	case StateOpen:
		return ReadyOpen
	default:
		return ReadyClosed
	}
}

// State reports the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Topics returns the desired topics, sorted.
func (m *Manager) Topics() []Topic {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.topics.list()
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	stats := ManagerStats{
		State:     m.state,
		Attempts:  m.attempts,
		NextDelay: m.nextDelay,
		Topics:    m.topics.len(),
	}
	m.mu.Unlock()

	stats.Listeners = m.listeners.len()
	stats.MessagesReceived = m.received.Load()
	stats.MessagesDropped = m.dropped.Load()
	stats.ListenerPanics = m.panics.Load()
	stats.Connects = m.connects.Load()
	return stats
}
