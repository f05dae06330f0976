package schedule

import "time"

// Task is a handle to a pending callback.
type Task interface {
	// Stop prevents the callback from firing. It returns false if the callback
	// already fired or was already stopped.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Task
	Now() time.Time
}

type realClock struct{}

// Clock returns a Scheduler backed by the runtime timers.
func Clock() Scheduler {
	return realClock{}
}

func (realClock) AfterFunc(d time.Duration, fn func()) Task {
	return time.AfterFunc(d, fn)
}

func (realClock) Now() time.Time {
	return time.Now()
}
