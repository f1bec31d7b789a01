package connection

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Decode unmarshals a message payload into T.
func Decode[T any](msg Message) (T, error) {
	var v T
	if len(msg.Data) == 0 {
		return v, fmt.Errorf("decode %s: %w: empty data", msg.Topic, ErrMalformedMessage)
	}
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", msg.Topic, err)
	}
	return v, nil
}

// OnTopic registers a listener that only sees messages on topic, with the
// payload decoded as T. Payloads that fail to decode are logged and skipped.
// It does not subscribe; pair it with Subscribe or use Watch.
func OnTopic[T any](m *Manager, topic Topic, fn func(T, Message)) func() {
	return m.OnMessage(func(msg Message) {
		if msg.Topic != topic {
			return
		}
		v, err := Decode[T](msg)
		if err != nil {
			m.logger.Warn("failed to decode payload", "topic", topic, "error", err)
			return
		}
		fn(v, msg)
	})
}

// Watch registers h and subscribes to topics for the lifetime of a caller.
// The returned stop releases both and is safe to call more than once.
func (m *Manager) Watch(topics []Topic, h Handler) (stop func()) {
	topics = dedupe(topics)
	remove := m.OnMessage(h)
	m.Subscribe(topics...)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.Unsubscribe(topics...)
			remove()
		})
	}
}
