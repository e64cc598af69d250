// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sampling

import "fmt"

// State is a step of one classification cycle.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateSampling
	StateEvaluating
	StateCompleted
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateSampling:
		return "sampling"
	case StateEvaluating:
		return "evaluating"
	case StateCompleted:
		return "completed"
	case StateFaulted:
		return "faulted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateFaulted; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown cycle state %q", b)
}

// Terminal reports whether the cycle has ended.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFaulted
}

// CanTransition reports whether moving from s to next is allowed.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateIdle:
		return next == StateRequesting
	case StateRequesting:
		return next == StateSampling || next == StateFaulted
	case StateSampling:
		return next == StateEvaluating || next == StateFaulted
	case StateEvaluating:
		return next == StateSampling || next == StateCompleted || next == StateFaulted
	case StateCompleted, StateFaulted:
		return false
	}
	return false
}
