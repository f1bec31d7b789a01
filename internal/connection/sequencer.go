package connection

import "sync"

// sequencer runs functions in ticket order. Tickets are taken under the
// manager lock, so the wire order matches call order even though the
// writes themselves happen outside it.
type sequencer struct {
	mu   sync.Mutex
	cond *sync.Cond
	next uint64 // next ticket to hand out
	turn uint64 // ticket allowed to run
}

func newSequencer() *sequencer {
	s := &sequencer{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *sequencer) ticket() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next
	s.next++
	return n
}

// do waits for ticket's turn, runs f and hands the turn to the next ticket.
func (s *sequencer) do(ticket uint64, f func()) {
	s.mu.Lock()
	for s.turn != ticket {
		s.cond.Wait()
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.turn++
		s.cond.Broadcast()
		s.mu.Unlock()
	}()
	f()
}
