package domain

import (
	"context"
	"time"
)

// AttemptEvent is emitted after each discovery attempt.
type AttemptEvent struct {
	SessionID   string
	Attempt     PollAttempt
	MaxAttempts int
}

// SessionEvent is emitted when a discovery session reaches a terminal state.
type SessionEvent struct {
	SessionID string
	State     SessionState
	Port      int
	Attempts  int
	Elapsed   time.Duration
	Err       error
}

// LifecycleHooks defines callbacks for discovery observability.
// Hooks run on the session's timer goroutine and must not block.
type LifecycleHooks struct {
	OnAttempt func(context.Context, *AttemptEvent)
	OnReady   func(context.Context, *SessionEvent)
	OnFailed  func(context.Context, *SessionEvent)
}
