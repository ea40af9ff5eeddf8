package typewriter

import (
	"sync"
	"time"
)

// manualScheduler holds timers until the test fires them with Step.
type manualScheduler struct {
	mu      sync.Mutex
	pending []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (s *manualScheduler) AfterFunc(_ time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, f: f}
	s.pending = append(s.pending, t)
	return t
}

// Step fires every timer that is pending right now and returns how many ran.
func (s *manualScheduler) Step() int {
	s.mu.Lock()
	due := s.pending
	s.pending = nil
	s.mu.Unlock()

	n := 0
	for _, t := range due {
		s.mu.Lock()
		skip := t.stopped
		t.fired = true
		s.mu.Unlock()
		if skip {
			continue
		}
		t.f()
		n++
	}
	return n
}

// Drain steps until no timer is left, up to limit steps.
func (s *manualScheduler) Drain(limit int) int {
	steps := 0
	for steps < limit && s.Step() > 0 {
		steps++
	}
	return steps
}

// Pending counts timers that have neither fired nor been stopped.
func (s *manualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.pending {
		if !t.stopped {
			n++
		}
	}
	return n
}
