package schedule

import (
	"sync"
	"time"
)

// Manual is a Scheduler whose time only moves when Advance is called.
// Callbacks run synchronously on the goroutine calling Advance.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	m    *Manual
	when time.Time
	seq  uint64
	fn   func()
}

// NewManual creates a Manual scheduler starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// AfterFunc schedules fn to run once time has advanced by d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{m: m, when: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Now returns the scheduler's current time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves time forward by d, firing every callback that falls due in order,
// including callbacks scheduled by callbacks inside the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		next := m.popDue(target)
		if next == nil {
			break
		}
		m.now = next.when
		m.mu.Unlock()
		next.fn()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

// Pending returns the number of callbacks that have not fired or been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// popDue removes and returns the earliest timer due at or before target.
// Must be called with m.mu held.
func (m *Manual) popDue(target time.Time) *manualTimer {
	idx := -1
	for i, t := range m.timers {
		if t.when.After(target) {
			continue
		}
		if idx == -1 || t.when.Before(m.timers[idx].when) ||
			(t.when.Equal(m.timers[idx].when) && t.seq < m.timers[idx].seq) {
			idx = i
		}
	}
	if idx == -1 {
		return nil
	}
	t := m.timers[idx]
	m.timers = append(m.timers[:idx], m.timers[idx+1:]...)
	return t
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for i, other := range t.m.timers {
		if other == t {
			t.m.timers = append(t.m.timers[:i], t.m.timers[i+1:]...)
			return true
		}
	}
	return false
}
