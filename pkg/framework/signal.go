package framework

import "sync"

// Signal is a single-slot wake-up notification. Any number of Notify calls
// made while the receiver is busy collapse into one pending wake-up. It
// carries no payload: the receiver is expected to re-check shared state.
type Signal struct {
	ch     chan struct{}
	once   sync.Once
	lock   sync.RWMutex
	closed bool
}

// NewSignal creates a Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// C returns the chan to wait on. A receive with ok == false means the
// Signal was closed.
func (s *Signal) C() <-chan struct{} {
	return s.ch
}

// Notify schedules a wake-up without blocking. It is a no-op after Close.
func (s *Signal) Notify() {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Close closes the Signal, waking any receiver with ok == false.
func (s *Signal) Close() {
	s.once.Do(func() {
		s.lock.Lock()
		s.closed = true
		close(s.ch)
		s.lock.Unlock()
	})
}
