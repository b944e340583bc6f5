package session

import (
	"encoding/json"
	"fmt"
)

// Phase is the connection lifecycle stage of a session.
type Phase int

// Session phases. Idle is the initial state of a new session.
const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseDisconnecting
	PhaseDisconnected
	PhaseFailed
)

// String returns the lower-case name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnecting:
		return "disconnecting"
	case PhaseDisconnected:
		return "disconnected"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Status is the observable connection status.
//
// Reason is only set for PhaseFailed. Two statuses are the same value iff
// both fields are equal, so Failed("a") followed by Failed("b") is a change.
type Status struct {
	Phase  Phase
	Reason string
}

// Convenience values for the phases that carry no reason.
var (
	StatusIdle          = Status{Phase: PhaseIdle}
	StatusConnecting    = Status{Phase: PhaseConnecting}
	StatusConnected     = Status{Phase: PhaseConnected}
	StatusDisconnecting = Status{Phase: PhaseDisconnecting}
	StatusDisconnected  = Status{Phase: PhaseDisconnected}
)

// Failed returns a failed status carrying a human-readable reason.
func Failed(reason string) Status {
	return Status{Phase: PhaseFailed, Reason: reason}
}

// String renders the status for display, e.g. "connected" or
// "failed: bad username or password".
func (s Status) String() string {
	if s.Phase == PhaseFailed && s.Reason != "" {
		return s.Phase.String() + ": " + s.Reason
	}
	return s.Phase.String()
}

// IsLive reports whether a session is being opened or is open.
func (s Status) IsLive() bool {
	return s.Phase == PhaseConnecting || s.Phase == PhaseConnected
}

// CanConnect reports whether a new connect attempt may start from this status.
func (s Status) CanConnect() bool {
	switch s.Phase {
	case PhaseIdle, PhaseDisconnected, PhaseFailed:
		return true
	default:
		return false
	}
}

// MarshalJSON encodes the status as {"phase": ..., "reason": ..., "text": ...}.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Phase  string `json:"phase"`
		Reason string `json:"reason,omitempty"`
		Text   string `json:"text"`
	}{
		Phase:  s.Phase.String(),
		Reason: s.Reason,
		Text:   s.String(),
	})
}
