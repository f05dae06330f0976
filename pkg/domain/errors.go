package domain

import "errors"

// ErrTimeout is returned when a discovery session exhausts its attempt budget.
var ErrTimeout = errors.New("sidecar did not start in time")

// ErrAnnouncementFailure is returned when a secondary announcement channel could not be written.
// It is never fatal: the stdout announcement is authoritative.
var ErrAnnouncementFailure = errors.New("announcement failure")

// ErrBindFailure is returned when the worker cannot bind a listener.
var ErrBindFailure = errors.New("bind failure")

// ErrChannelUnavailable is returned when the primary query channel is not initialized.
var ErrChannelUnavailable = errors.New("query channel unavailable")

// ErrPortNotKnown is returned when a channel has no port yet.
var ErrPortNotKnown = errors.New("port not yet known")

// ErrWorkerExited is returned when the worker process exited before announcing a port.
var ErrWorkerExited = errors.New("worker exited before announcing")

// ErrCancelled is returned when a discovery session is cancelled by its consumer.
var ErrCancelled = errors.New("discovery cancelled")

// ErrInvalidPort is returned when a value is not a port in [1, 65535].
var ErrInvalidPort = errors.New("invalid port")

// ErrStaleRecord is returned when a persisted record predates the current worker lifetime
// or disagrees with a live query.
var ErrStaleRecord = errors.New("stale port record")
