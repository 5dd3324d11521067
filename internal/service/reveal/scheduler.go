// Package reveal types text out one rune at a time on a fixed interval.
package reveal

import (
	"sync"
	"time"
)

// DefaultInterval is the delay between successive prefixes.
const DefaultInterval = 50 * time.Millisecond

// Handle controls a single reveal run.
type Handle struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once

	// mu is held while a callback runs, so Cancel can wait it out.
	mu       sync.Mutex
	finished bool
}

func newHandle() *Handle {
	return &Handle{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Cancel stops the reveal and reports whether it was still pending.
// Once Cancel returns no further callback will start. It must not be called
// from inside the reveal's own callbacks.
func (h *Handle) Cancel() bool {
	if h == nil {
		return false
	}
	h.once.Do(func() { close(h.stop) })

	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.finished
}

// Done is closed once the reveal goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Completed reports whether onComplete ran.
func (h *Handle) Completed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished
}

func (h *Handle) stopped() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}

// Scheduler runs at most one reveal at a time.
type Scheduler struct {
	interval time.Duration

	mu      sync.Mutex
	current *Handle
}

// NewScheduler creates a scheduler; non-positive intervals use DefaultInterval.
func NewScheduler(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{interval: interval}
}

// Interval returns the per-rune delay.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Reveal cancels any in-flight reveal and then emits successively longer
// prefixes of text to onPrefix, one per tick. onComplete runs exactly once
// after the full text was emitted unless the handle is cancelled first.
func (s *Scheduler) Reveal(text string, onPrefix func(prefix string), onComplete func()) *Handle {
	return s.RevealIf(nil, text, onPrefix, onComplete)
}

// RevealIf is Reveal gated by guard, which is evaluated while no other
// reveal can be installed. If guard reports false nothing is replaced and
// RevealIf returns nil. guard must not call back into the scheduler.
func (s *Scheduler) RevealIf(guard func() bool, text string, onPrefix func(prefix string), onComplete func()) *Handle {
	s.mu.Lock()
	if guard != nil && !guard() {
		s.mu.Unlock()
		return nil
	}
	h := newHandle()
	prev := s.current
	s.current = h
	s.mu.Unlock()

	prev.Cancel()

	go s.run(h, []rune(text), onPrefix, onComplete)
	return h
}

// Cancel stops the in-flight reveal, if any, and reports whether one was
// still pending.
func (s *Scheduler) Cancel() bool {
	return s.CancelIf(nil)
}

// CancelIf is Cancel gated by guard, evaluated the same way as in RevealIf.
func (s *Scheduler) CancelIf(guard func() bool) bool {
	s.mu.Lock()
	if guard != nil && !guard() {
		s.mu.Unlock()
		return false
	}
	current := s.current
	s.current = nil
	s.mu.Unlock()

	return current.Cancel()
}

func (s *Scheduler) run(h *Handle, runes []rune, onPrefix func(string), onComplete func()) {
	defer close(h.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for emitted := 0; ; {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
		}

		h.mu.Lock()
		if h.stopped() {
			h.mu.Unlock()
			return
		}

		if emitted < len(runes) {
			emitted++
			if onPrefix != nil {
				onPrefix(string(runes[:emitted]))
			}
			h.mu.Unlock()
			continue
		}

		h.finished = true
		if onComplete != nil {
			onComplete()
		}
		h.mu.Unlock()
		return
	}
}
