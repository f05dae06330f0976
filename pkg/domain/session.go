package domain

import (
	"fmt"
	"time"
)

// PollOutcome is the result of a single discovery attempt.
type PollOutcome string

const (
	OutcomePending            PollOutcome = "pending"
	OutcomePortFound          PollOutcome = "port_found"
	OutcomeNoPortYet          PollOutcome = "no_port_yet"
	OutcomeChannelUnavailable PollOutcome = "channel_unavailable"
)

// PollAttempt records one query issued by a discovery session. Not persisted.
type PollAttempt struct {
	Number  int         `json:"number"`
	At      time.Time   `json:"at"`
	Outcome PollOutcome `json:"outcome"`
	Port    int         `json:"port,omitempty"`
	Err     error       `json:"-"`
}

// SessionState is the discovery session state machine: Idle -> Polling -> {Ready | Failed}.
type SessionState string

const (
	SessionIdle    SessionState = "idle"
	SessionPolling SessionState = "polling"
	SessionReady   SessionState = "ready"
	SessionFailed  SessionState = "failed"
)

// Phase is the tri-state exposed to consumers.
type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseError   Phase = "error"
)

// Status is the consumer-facing view of a discovery session.
type Status struct {
	Phase  Phase  `json:"phase"`
	Port   int    `json:"port,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// IsReady reports a known port with no loading or error in progress.
func (s Status) IsReady() bool {
	return s.Phase == PhaseReady && s.Port > 0 && s.Reason == ""
}

func (s Status) String() string {
	switch s.Phase {
	case PhaseReady:
		return fmt.Sprintf("ready(%d)", s.Port)
	case PhaseError:
		return fmt.Sprintf("error(%s)", s.Reason)
	default:
		return string(PhaseLoading)
	}
}
