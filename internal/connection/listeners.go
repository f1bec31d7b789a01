package connection

import (
	"sync"

	"github.com/google/uuid"
)

type listener struct {
	id      uuid.UUID
	handler Handler
}

// listenerRegistry keeps handlers in registration order.
type listenerRegistry struct {
	mu        sync.RWMutex
	listeners []listener
}

func (r *listenerRegistry) add(h Handler) uuid.UUID {
	id := uuid.New()

	r.mu.Lock()
	r.listeners = append(r.listeners, listener{id: id, handler: h})
	r.mu.Unlock()

	return id
}

// remove reports whether the listener was still registered.
func (r *listenerRegistry) remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, l := range r.listeners {
		if l.id == id {
			r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot returns the handlers to invoke for one message. Listeners added
// or removed during delivery take effect from the next message.
func (r *listenerRegistry) snapshot() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handler, len(r.listeners))
	for i, l := range r.listeners {
		out[i] = l.handler
	}
	return out
}

func (r *listenerRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

func (r *listenerRegistry) reset() {
	r.mu.Lock()
	r.listeners = nil
	r.mu.Unlock()
}
