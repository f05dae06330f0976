package ports

import "context"

// PortQuerier is the primary query channel (e.g. the supervisor's get_sidecar_port).
type PortQuerier interface {
	// QueryPort returns the announced port without blocking on the announcement.
	// Returns domain.ErrPortNotKnown while the port is not yet known.
	QueryPort(ctx context.Context) (int, error)

	// Available reports whether the channel is usable at all in this host.
	// It is consulted once, when the discovery capability is selected.
	Available() bool
}

// QuerierFunc adapts a function to PortQuerier. It is always available.
type QuerierFunc func(ctx context.Context) (int, error)

// QueryPort calls f.
func (f QuerierFunc) QueryPort(ctx context.Context) (int, error) {
	return f(ctx)
}

// Available always returns true.
func (f QuerierFunc) Available() bool { return true }
