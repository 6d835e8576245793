package clock

import (
	"sync"
	"time"
)

// Source calls an armed function once per tick until disarmed.
type Source interface {
	// Arm starts a fresh schedule for fn, replacing any previous one.
	Arm(fn func())
	// Disarm cancels the current schedule. Safe to call when not armed.
	Disarm()
}

// Ticker is a Source backed by time.Ticker.
type Ticker struct {
	mu       sync.Mutex
	interval time.Duration
	gen      uint64
	stopCh   chan struct{}
}

// NewTicker creates a Ticker. Non-positive intervals default to one second.
func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Ticker{interval: interval}
}

// Arm starts ticking fn. Each call retires the previous schedule.
func (t *Ticker) Arm(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarmLocked()

	t.gen++
	stopCh := make(chan struct{})
	t.stopCh = stopCh
	go t.run(t.gen, stopCh, fn)
}

// Disarm stops the current schedule.
func (t *Ticker) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarmLocked()
}

func (t *Ticker) disarmLocked() {
	if t.stopCh == nil {
		return
	}
	close(t.stopCh)
	t.stopCh = nil
	t.gen++
}

func (t *Ticker) run(gen uint64, stopCh chan struct{}, fn func()) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !t.current(gen) {
				return
			}
			fn()
		}
	}
}

func (t *Ticker) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen == gen && t.stopCh != nil
}

// Manual is a Source driven explicitly by Fire, for tests and replays.
type Manual struct {
	mu   sync.Mutex
	fn   func()
	arms int
}

// Arm records fn as the current tick target.
func (m *Manual) Arm(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	m.arms++
}

// Disarm clears the tick target.
func (m *Manual) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = nil
}

// Armed reports whether a schedule is active.
func (m *Manual) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fn != nil
}

// Arms returns how many times Arm has been called.
func (m *Manual) Arms() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.arms
}

// Fire delivers n ticks, stopping early if the target disarms itself.
// It returns the number of ticks delivered.
func (m *Manual) Fire(n int) int {
	delivered := 0
	for range n {
		m.mu.Lock()
		fn := m.fn
		m.mu.Unlock()
		if fn == nil {
			break
		}
		fn()
		delivered++
	}
	return delivered
}
