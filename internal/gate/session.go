package gate

import "sync"

// Session holds the staged operation for one authenticated identity. It is
// an explicit value owned by the caller (typically one per login session),
// never shared across identities. Concurrent Stage calls within a session
// are last-write-wins; Confirm consumes the staged operation atomically.
type Session struct {
	mu      sync.Mutex
	pending *PendingOperation
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) put(p PendingOperation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &p
}

// take removes and returns the staged operation, if any. A staged operation
// can be taken at most once.
func (s *Session) take() (PendingOperation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return PendingOperation{}, false
	}
	p := *s.pending
	s.pending = nil
	return p, true
}
