/*
Package domain contains the core domain models of the sidecar port-discovery handshake.

It defines the announcement wire format, the lifecycle states of a supervised worker,
the records persisted to fallback channels and the per-attempt bookkeeping of a
discovery session. This package is kept pure and free of I/O, following Hexagonal
Architecture principles.

# Key Entities

  - HandleState: Lifecycle of one worker process as seen by the supervisor.
  - PortRecord: The value a worker persists to a fallback channel (file, registry).
  - PollAttempt: One query issued by a discovery session.
  - SessionState / Status: The discovery session's own state and the tri-state view
    (loading, ready, error) handed to consumers.
*/
package domain
