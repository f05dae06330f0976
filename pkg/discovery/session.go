package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/sidecar/pkg/domain"
	"github.com/aretw0/sidecar/pkg/schedule"
	"github.com/google/uuid"
)

// Session is one bounded attempt to learn the worker's port.
// State machine: Idle -> Polling -> {Ready | Failed}.
type Session struct {
	id        string
	client    *Client
	ctx       context.Context
	stopWatch func() bool
	loop      *schedule.Loop
	startedAt time.Time

	mu        sync.Mutex
	state     domain.SessionState
	port      int
	attempts  []domain.PollAttempt
	err       error
	cancelled bool

	done     chan struct{}
	doneOnce sync.Once
}

func newSession(ctx context.Context, c *Client) *Session {
	s := &Session{
		id:     uuid.NewString(),
		client: c,
		ctx:    ctx,
		state:  domain.SessionIdle,
		done:   make(chan struct{}),
	}
	s.loop = schedule.NewLoop(c.sched, c.interval, s.step)
	return s
}

func (s *Session) start() {
	s.mu.Lock()
	s.state = domain.SessionPolling
	s.startedAt = s.client.sched.Now()
	s.mu.Unlock()

	s.client.logger.Info("Starting sidecar port discovery",
		"session_id", s.id, "mode", s.client.capability.Mode(),
		"interval", s.client.interval, "max_attempts", s.client.maxAttempts)

	stop := context.AfterFunc(s.ctx, s.Cancel)
	s.mu.Lock()
	s.stopWatch = stop
	s.mu.Unlock()
	s.loop.Start()
}

// step performs one attempt and reports whether another should be scheduled.
func (s *Session) step() bool {
	s.mu.Lock()
	if s.cancelled || s.state != domain.SessionPolling {
		s.mu.Unlock()
		return false
	}
	number := len(s.attempts) + 1
	s.mu.Unlock()

	c := s.client
	c.logger.Debug("Discovery attempt", "session_id", s.id, "attempt", number, "max_attempts", c.maxAttempts)

	attemptCtx, cancel := context.WithTimeout(s.ctx, c.interval)
	port, outcome, err := c.capability.poll(attemptCtx, c.freshSince, c.logger)
	cancel()

	attempt := domain.PollAttempt{
		Number:  number,
		At:      c.sched.Now(),
		Outcome: outcome,
		Port:    port,
		Err:     err,
	}

	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return false
	}
	s.attempts = append(s.attempts, attempt)

	var terminal *domain.SessionEvent
	switch {
	case outcome == domain.OutcomePortFound:
		s.state = domain.SessionReady
		s.port = port
		terminal = s.eventLocked()
	case number >= c.maxAttempts:
		s.state = domain.SessionFailed
		s.err = fmt.Errorf("%w: no port after %d attempts", domain.ErrTimeout, number)
		terminal = s.eventLocked()
	}
	s.mu.Unlock()

	if err != nil {
		c.logger.Debug("Discovery attempt failed", "session_id", s.id, "attempt", number, "outcome", outcome, "error", err)
	}
	if c.hooks.OnAttempt != nil {
		c.hooks.OnAttempt(s.ctx, &domain.AttemptEvent{SessionID: s.id, Attempt: attempt, MaxAttempts: c.maxAttempts})
	}

	if terminal == nil {
		return true
	}

	if terminal.State == domain.SessionReady {
		c.logger.Info("Sidecar port discovered", "session_id", s.id, "port", port, "attempts", number)
		if c.hooks.OnReady != nil {
			c.hooks.OnReady(s.ctx, terminal)
		}
	} else {
		c.logger.Warn("Sidecar port discovery timed out", "session_id", s.id, "attempts", number, "error", terminal.Err)
		if c.hooks.OnFailed != nil {
			c.hooks.OnFailed(s.ctx, terminal)
		}
	}
	s.finish()
	return false
}

// eventLocked must be called with s.mu held.
func (s *Session) eventLocked() *domain.SessionEvent {
	return &domain.SessionEvent{
		SessionID: s.id,
		State:     s.state,
		Port:      s.port,
		Attempts:  len(s.attempts),
		Elapsed:   s.client.sched.Now().Sub(s.startedAt),
		Err:       s.err,
	}
}

// Cancel stops the session. No attempt is issued after Cancel returns, and a
// session still polling makes no further state transition.
// Cancelling a finished session only releases its resources.
func (s *Session) Cancel() {
	s.mu.Lock()
	if !s.cancelled {
		s.cancelled = true
		if s.state == domain.SessionPolling || s.state == domain.SessionIdle {
			s.err = domain.ErrCancelled
		}
	}
	s.mu.Unlock()

	s.loop.Cancel()
	s.finish()
}

func (s *Session) finish() {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		stop := s.stopWatch
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		close(s.done)
	})
}

// ID identifies the session in logs and hooks.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Port returns the discovered port. It never issues a query.
func (s *Session) Port() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.SessionReady {
		return 0, false
	}
	return s.port, true
}

// Err returns the terminal error: a domain.ErrTimeout wrap, domain.ErrCancelled, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancelled reports whether Cancel has been called.
func (s *Session) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// AttemptsMade returns the number of completed attempts.
func (s *Session) AttemptsMade() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

// Attempts returns a copy of the attempt log.
func (s *Session) Attempts() []domain.PollAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PollAttempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// Status returns the consumer-facing tri-state.
func (s *Session) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case domain.SessionReady:
		return domain.Status{Phase: domain.PhaseReady, Port: s.port}
	case domain.SessionFailed:
		return domain.Status{Phase: domain.PhaseError, Reason: s.err.Error()}
	default:
		return domain.Status{Phase: domain.PhaseLoading}
	}
}

// Done is closed when the session reaches Ready or Failed, or is cancelled.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends or ctx is done.
func (s *Session) Wait(ctx context.Context) (int, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionReady {
		return s.port, nil
	}
	if s.err != nil {
		return 0, s.err
	}
	return 0, domain.ErrCancelled
}
