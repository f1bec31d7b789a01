package connection

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakeTransport is an in-memory Transport driven by the test.
type fakeTransport struct {
	mu       sync.Mutex
	sent     [][]byte
	closed   bool
	err      error
	messages chan TimestampedMessage
	once     sync.Once

	gate    chan struct{} // when set, Send waits for it to close
	waiting int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{messages: make(chan TimestampedMessage, 64)}
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	gate := f.gate
	if gate != nil {
		f.waiting++
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if gate != nil {
		f.waiting--
	}
	if f.closed {
		return ErrNotConnected
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Messages() <-chan TimestampedMessage { return f.messages }

func (f *fakeTransport) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeTransport) Close() error {
	f.end(nil)
	return nil
}

// drop simulates the server or network ending the connection.
func (f *fakeTransport) drop(err error) {
	f.end(err)
}

func (f *fakeTransport) end(err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.err = err
		f.mu.Unlock()
		close(f.messages)
	})
}

// holdSends makes Send block until the returned function is called.
func (f *fakeTransport) holdSends() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.gate = nil
		f.mu.Unlock()
		close(gate)
	}
}

func (f *fakeTransport) waitingSends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waiting
}

func (f *fakeTransport) push(frame string) {
	f.messages <- TimestampedMessage{Data: []byte(frame), ReceivedAt: time.Now()}
}

func (f *fakeTransport) commands(t *testing.T) []Command {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Command, 0, len(f.sent))
	for _, data := range f.sent {
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			t.Fatalf("unmarshal sent command: %v", err)
		}
		out = append(out, cmd)
	}
	return out
}

// fakeDialer hands out fakeTransports, or fails with err when set.
type fakeDialer struct {
	mu         sync.Mutex
	err        error
	block      bool
	dials      int
	urls       []string
	transports chan *fakeTransport
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{transports: make(chan *fakeTransport, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (Transport, error) {
	d.mu.Lock()
	d.dials++
	d.urls = append(d.urls, endpoint)
	err, block := d.err, d.block
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	t := newFakeTransport()
	d.transports <- t
	return t, nil
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) lastURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.urls) == 0 {
		return ""
	}
	return d.urls[len(d.urls)-1]
}

func (d *fakeDialer) next(t *testing.T) *fakeTransport {
	t.Helper()
	select {
	case tr := <-d.transports:
		return tr
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for dial")
		return nil
	}
}

// fakeScheduler records reconnect timers and fires them on demand.
type fakeScheduler struct {
	mu        sync.Mutex
	timers    []*fakeTimer
	scheduled chan time.Duration
}

type fakeTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	f       func()
	stopped bool
}

func (ft *fakeTimer) Stop() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	was := !ft.stopped
	ft.stopped = true
	return was
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{scheduled: make(chan time.Duration, 16)}
}

func (s *fakeScheduler) schedule(d time.Duration, f func()) timer {
	ft := &fakeTimer{delay: d, f: f}
	s.mu.Lock()
	s.timers = append(s.timers, ft)
	s.mu.Unlock()
	s.scheduled <- d
	return ft
}

// waitScheduled returns the delay of the next scheduled reconnect.
func (s *fakeScheduler) waitScheduled(t *testing.T) time.Duration {
	t.Helper()
	select {
	case d := <-s.scheduled:
		return d
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for reconnect to be scheduled")
		return 0
	}
}

// fire runs the most recent timer unless it was stopped.
func (s *fakeScheduler) fire() {
	s.mu.Lock()
	ft := s.timers[len(s.timers)-1]
	s.mu.Unlock()

	ft.mu.Lock()
	stopped := ft.stopped
	ft.mu.Unlock()
	if !stopped {
		ft.f()
	}
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, cfg ManagerConfig, d Dialer) (*Manager, *fakeScheduler) {
	t.Helper()
	if cfg.URL == "" {
		cfg.URL = "ws://brikk.test/ws"
	}
	m := NewManager(cfg, d, discardLogger())
	s := newFakeScheduler()
	m.schedule = s.schedule
	t.Cleanup(m.Disconnect)
	return m, s
}
