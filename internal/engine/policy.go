package engine

import (
	"time"

	"github.com/pkg/errors"
)

// State is the failure handling state of an engine.
type State int

const (
	StateRunning State = iota
	StateRecovering
	StateEscalated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateRecovering:
		return "RECOVERING"
	case StateEscalated:
		return "ESCALATED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state name in status output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "RUNNING":
		*s = StateRunning
	case "RECOVERING":
		*s = StateRecovering
	case "ESCALATED":
		*s = StateEscalated
	default:
		return errors.Errorf("unknown engine state %q", text)
	}
	return nil
}

const (
	// DefaultRecoveryThreshold is the minimum distance between two faults for
	// the second one to be recovered locally instead of escalated.
	DefaultRecoveryThreshold = 120 * time.Second
	// DefaultEscalationBackoff is the pause after an escalation.
	DefaultEscalationBackoff = 10 * time.Minute
)

// Policy decides state transitions of the failure handling loop.
type Policy struct {
	RecoveryThreshold time.Duration
	EscalationBackoff time.Duration
}

// DefaultPolicy returns the production policy.
func DefaultPolicy() Policy {
	return Policy{
		RecoveryThreshold: DefaultRecoveryThreshold,
		EscalationBackoff: DefaultEscalationBackoff,
	}
}

// Next returns the state that follows current given the last fault and the
// time elapsed since the previous fault.
func (p Policy) Next(current State, fault error, elapsed time.Duration) State {
	switch current {
	case StateRunning:
		if fault == nil {
			return StateRunning
		}
		return StateRecovering
	case StateRecovering:
		if fault == nil || elapsed > p.RecoveryThreshold {
			return StateRunning
		}
		return StateEscalated
	default:
		return StateRunning
	}
}
