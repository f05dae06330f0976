package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aretw0/sidecar/pkg/domain"
)

// Querier is an in-memory ports.PortQuerier.
// It stands in for a supervisor when embedding the discovery client or testing it,
// and counts every query it receives.
type Querier struct {
	mu        sync.RWMutex
	port      int
	err       error
	available bool

	calls atomic.Int64
}

// QuerierOption configures a Querier.
type QuerierOption func(*Querier)

// WithUnavailable marks the channel as not present in this host.
func WithUnavailable() QuerierOption {
	return func(q *Querier) {
		q.available = false
	}
}

// WithPort starts the querier with an already announced port.
func WithPort(port int) QuerierOption {
	return func(q *Querier) {
		q.port = port
	}
}

// NewQuerier creates a Querier that reports "not yet known" until Announce is called.
func NewQuerier(opts ...QuerierOption) *Querier {
	q := &Querier{available: true}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Announce makes port visible to subsequent queries.
func (q *Querier) Announce(port int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.port = port
}

// FailWith makes subsequent queries return err (nil restores normal behaviour).
func (q *Querier) FailWith(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

// QueryPort returns the announced port or domain.ErrPortNotKnown.
func (q *Querier) QueryPort(ctx context.Context) (int, error) {
	q.calls.Add(1)

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.err != nil {
		return 0, q.err
	}
	if q.port == 0 {
		return 0, domain.ErrPortNotKnown
	}
	return q.port, nil
}

// Available reports whether the querier was created as an available channel.
func (q *Querier) Available() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.available
}

// Calls returns how many times QueryPort has been invoked.
func (q *Querier) Calls() int {
	return int(q.calls.Load())
}
