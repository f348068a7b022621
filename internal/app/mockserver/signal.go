package mockserver

import (
	"sync"
	"time"
)

// captureSignal is closed and replaced on every capture or served interaction, waking all
// goroutines blocked in wait.
type captureSignal struct {
	mu      sync.Mutex
	changed chan struct{}
}

func newCaptureSignal() *captureSignal {
	return &captureSignal{changed: make(chan struct{})}
}

func (s *captureSignal) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.changed)
	s.changed = make(chan struct{})
}

// wait returns after the next broadcast, or after timeout.
func (s *captureSignal) wait(timeout time.Duration) {
	s.mu.Lock()
	changed := s.changed
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-changed:
	case <-timer.C:
	}
}
