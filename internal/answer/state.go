// Package answer implements the answer flow for a single interview question:
// accumulating a spoken transcript, grading it with the text generator and
// saving the graded answer at most once per user and question.
package answer

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of an [Attempt].
type State int

const (
	Idle State = iota
	Recording
	Stopped
	Grading
	Graded
	Saving
	Saved
)

var stateNames = [...]string{
	Idle:      "idle",
	Recording: "recording",
	Stopped:   "stopped",
	Grading:   "grading",
	Graded:    "graded",
	Saving:    "saving",
	Saved:     "saved",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("answer: unknown state %q", b)
}

// ErrInvalidTransition is returned when an operation is not allowed in the
// attempt's current state.
var ErrInvalidTransition = errors.New("answer: invalid state transition")

func transitionError(op string, from State) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, op, from)
}
