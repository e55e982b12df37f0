package cursor

import (
	"errors"
	"slices"
	"time"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
)

// State is an alias for domain.CursorState for internal use.
type State = domain.CursorState

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
// Exhausted and Failed are terminal.
var ValidTransitions = map[State][]State{
	domain.CursorStateInit: {domain.CursorStateFetching, domain.CursorStateExhausted},
	domain.CursorStateFetching: {
		domain.CursorStateFetching,
		domain.CursorStateExhausted,
		domain.CursorStateFailed,
	},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	validTargets, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(validTargets, to)
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to State, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// IsTerminal reports whether no further pages can be produced from s.
func IsTerminal(s State) bool {
	return s == domain.CursorStateExhausted || s == domain.CursorStateFailed
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case domain.CursorStateInit:
		return "Initializing - cursor created, no request issued yet"
	case domain.CursorStateFetching:
		return "Fetching - pages are being requested"
	case domain.CursorStateExhausted:
		return "Exhausted - server reported no further pages"
	case domain.CursorStateFailed:
		return "Failed - a request or page transform returned an error"
	default:
		return "Unknown state"
	}
}
