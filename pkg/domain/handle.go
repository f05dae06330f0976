package domain

// HandleState is the lifecycle of one worker process as observed by its supervisor.
//
// Transitions are monotonic: Starting -> PortKnown -> Ready. Failed and Stopped are
// terminal and reachable from any state.
type HandleState int32

const (
	HandleStarting HandleState = iota
	HandlePortKnown
	HandleReady
	HandleFailed
	HandleStopped
)

func (s HandleState) String() string {
	switch s {
	case HandleStarting:
		return "starting"
	case HandlePortKnown:
		return "port_known"
	case HandleReady:
		return "ready"
	case HandleFailed:
		return "failed"
	case HandleStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can leave s.
func (s HandleState) Terminal() bool {
	return s == HandleFailed || s == HandleStopped
}

// CanTransition reports whether moving from s to next respects the monotonic lifecycle.
func (s HandleState) CanTransition(next HandleState) bool {
	if s.Terminal() {
		return false
	}
	if next.Terminal() {
		return true
	}
	return next > s
}
