// Package workflow implements the lifecycle state machine for tracked URLs.
package workflow

import (
	"fmt"
	"time"
)

// State is a URL's place in the review lifecycle.
type State string

// Lifecycle states. A URL has exactly one current state at any time;
// archived is terminal.
const (
	StatePending   State = "pending"
	StateExtracted State = "extracted"
	StateRead      State = "read"
	StateValuable  State = "valuable"
	StateArchived  State = "archived"
)

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateExtracted, StateRead, StateValuable, StateArchived:
		return true
	}
	return false
}

// Record tracks one canonical URL through the workflow. It is owned
// exclusively by the store and mutated only through defined transitions.
type Record struct {
	URL          string
	Title        string
	Platform     string
	State        State
	Fingerprint  string
	DocumentPath string
	Tags         []string
	FailureText  string
	AccessCount  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InvalidTransitionError reports a transition request outside the table.
// The record's state is left unchanged.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// transitions is the full transition table. Missing entries are rejected.
var transitions = map[State][]State{
	StatePending:   {StateExtracted},
	StateExtracted: {StateRead, StateArchived},
	StateRead:      {StateValuable, StateArchived},
	StateValuable:  {StateArchived},
	StateArchived:  {},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves the record to the target state, or fails with an
// InvalidTransitionError without mutating it.
func Transition(rec *Record, to State, now time.Time) error {
	if !CanTransition(rec.State, to) {
		return &InvalidTransitionError{From: rec.State, To: to}
	}
	rec.State = to
	rec.UpdatedAt = now
	return nil
}

// Reset forces a record back to pending so the next sync re-fetches it.
// This is the one deliberate escape hatch from the transition table and
// requires an explicit caller request.
func Reset(rec *Record, now time.Time) {
	rec.State = StatePending
	rec.Fingerprint = ""
	rec.FailureText = ""
	rec.UpdatedAt = now
}
