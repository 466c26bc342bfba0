package models

import "strings"

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ParseStatus normalizes a raw status string. Unknown values are returned
// verbatim with ok=false so callers can still display them.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if s.IsKnown() {
		return s, true
	}
	return Status(raw), false
}

// IsTerminal reports whether no further transition is expected.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsKnown reports whether s is one of the four lifecycle states.
func (s Status) IsKnown() bool {
	switch s {
	case StatusInitiated, StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// rank orders the states so transitions only move forward.
func (s Status) rank() int {
	switch s {
	case StatusInitiated:
		return 0
	case StatusPending:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// CanTransition reports whether a payment in state from may move to state to.
// Staying in the same state is allowed; nothing leaves a terminal state.
func CanTransition(from, to Status) bool {
	if !from.IsKnown() || !to.IsKnown() {
		return false
	}
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	return to.rank() > from.rank()
}
