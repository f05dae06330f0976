package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/sidecar/internal/logging"
	"github.com/aretw0/sidecar/pkg/domain"
	"github.com/aretw0/sidecar/pkg/schedule"
)

const (
	// DefaultInterval is the delay between two attempts.
	DefaultInterval = 500 * time.Millisecond
	// DefaultMaxAttempts bounds a session to roughly 15 seconds at DefaultInterval.
	DefaultMaxAttempts = 30
)

// Client creates discovery sessions against one Capability.
type Client struct {
	capability  Capability
	interval    time.Duration
	maxAttempts int
	sched       schedule.Scheduler
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	freshSince  time.Time
}

// Option configures the Client.
type Option func(*Client)

// WithInterval sets the delay between attempts.
func WithInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithMaxAttempts sets the attempt ceiling after which a session fails.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithScheduler replaces the runtime clock, e.g. with schedule.NewManual in tests.
func WithScheduler(s schedule.Scheduler) Option {
	return func(c *Client) {
		c.sched = s
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHooks registers lifecycle callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Client) {
		c.hooks = hooks
	}
}

// WithFreshness rejects fallback records written before t, the start of the
// current worker lifetime, less FreshnessTolerance.
func WithFreshness(t time.Time) Option {
	return func(c *Client) {
		c.freshSince = t
	}
}

// NewClient creates a Client for the given capability.
func NewClient(capability Capability, opts ...Option) *Client {
	c := &Client{
		capability:  capability,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		sched:       schedule.Clock(),
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mode returns the channel the client polls.
func (c *Client) Mode() Mode {
	return c.capability.Mode()
}

// Start begins a new session. The first attempt is issued immediately.
// Cancelling ctx cancels the session.
func (c *Client) Start(ctx context.Context) *Session {
	s := newSession(ctx, c)
	s.start()
	return s
}

// Discover runs a single session to completion.
func Discover(ctx context.Context, capability Capability, opts ...Option) (int, error) {
	s := NewClient(capability, opts...).Start(ctx)
	defer s.Cancel()
	return s.Wait(ctx)
}

// BaseURL is the address consumers use to reach a worker on port.
func BaseURL(port int) string {
	return fmt.Sprintf("http://localhost:%d", port)
}
