package supervisor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/sidecar/pkg/domain"
)

// Handle is the supervisor's view of one worker process.
//
// The supervisor is the only writer. The port is stored once, before the state
// leaves Starting, so any reader that observes PortKnown or Ready also observes it.
type Handle struct {
	pid       int
	startedAt time.Time

	port  atomic.Int32
	state atomic.Int32

	mu  sync.Mutex
	err error

	done     chan struct{}
	onChange func(from, to domain.HandleState)
}

func newHandle(pid int, startedAt time.Time, onChange func(from, to domain.HandleState)) *Handle {
	return &Handle{
		pid:       pid,
		startedAt: startedAt,
		done:      make(chan struct{}),
		onChange:  onChange,
	}
}

// PID returns the worker's process id.
func (h *Handle) PID() int { return h.pid }

// StartedAt returns when the worker was spawned.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// State returns the current lifecycle state.
func (h *Handle) State() domain.HandleState {
	return domain.HandleState(h.state.Load())
}

// Port returns the announced port, if one was ever observed.
// Unlike Supervisor.Query it keeps reporting the port after the worker exits.
func (h *Handle) Port() (int, bool) {
	p := int(h.port.Load())
	return p, p != 0
}

// Err returns the reason the worker failed, or nil.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Done is closed once the worker process has exited and its output is drained.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// setPort records the first announcement. Later calls return false.
func (h *Handle) setPort(port int) bool {
	return h.port.CompareAndSwap(0, int32(port))
}

func (h *Handle) transition(next domain.HandleState) bool {
	for {
		cur := domain.HandleState(h.state.Load())
		if !cur.CanTransition(next) {
			return false
		}
		if h.state.CompareAndSwap(int32(cur), int32(next)) {
			if h.onChange != nil {
				h.onChange(cur, next)
			}
			return true
		}
	}
}

func (h *Handle) fail(err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.State().Terminal() {
		return false
	}
	h.err = err
	return h.transition(domain.HandleFailed)
}
