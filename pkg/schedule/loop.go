package schedule

import (
	"sync"
	"sync/atomic"
	"time"
)

// Loop repeatedly runs a step on a Scheduler with a fixed delay between runs.
//
// The first step is scheduled with no delay. A step returning false ends the loop.
// Cancel stops the pending timer and sets a token every callback checks before
// running, so no step starts after Cancel returns.
type Loop struct {
	sched    Scheduler
	interval time.Duration
	step     func() bool

	mu        sync.Mutex
	task      Task
	started   bool
	cancelled atomic.Bool

	done     chan struct{}
	doneOnce sync.Once
}

// NewLoop creates a stopped Loop.
func NewLoop(sched Scheduler, interval time.Duration, step func() bool) *Loop {
	if sched == nil {
		sched = Clock()
	}
	return &Loop{
		sched:    sched,
		interval: interval,
		step:     step,
		done:     make(chan struct{}),
	}
}

// Start schedules the first step. Calling Start more than once has no effect.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.cancelled.Load() {
		return
	}
	l.started = true
	l.task = l.sched.AfterFunc(0, l.tick)
}

// Cancel stops the loop. It is safe to call from any goroutine, including from a step.
func (l *Loop) Cancel() {
	if l.cancelled.Swap(true) {
		return
	}
	l.mu.Lock()
	if l.task != nil {
		l.task.Stop()
	}
	l.mu.Unlock()
	l.finish()
}

// Cancelled reports whether Cancel has been called.
func (l *Loop) Cancelled() bool {
	return l.cancelled.Load()
}

// Done is closed once the loop has ended, by exhaustion or cancellation.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) tick() {
	if l.cancelled.Load() {
		return
	}
	if !l.step() {
		l.finish()
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancelled.Load() {
		return
	}
	l.task = l.sched.AfterFunc(l.interval, l.tick)
}

func (l *Loop) finish() {
	l.doneOnce.Do(func() { close(l.done) })
}
