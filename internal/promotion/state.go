package promotion

import (
	"fmt"
	"strings"

	"github.com/georgeannie/mlops-framework/internal/tracking"
)

// State is the promotion state of one (model, run) pair.
type State string

const (
	StatePending    State = "PENDING"
	StateEvaluated  State = "EVALUATED"
	StateAccepted   State = "ACCEPTED"
	StateRejected   State = "REJECTED"
	StateRegistered State = "REGISTERED"
)

var transitions = map[State][]State{
	StatePending:   {StateEvaluated},
	StateEvaluated: {StateAccepted, StateRejected},
	StateAccepted:  {StateRegistered},
}

// Terminal reports whether no further transition leaves s.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateRegistered
}

// Transition validates a single step. Staying in the same state is allowed
// so repeated writes of one outcome stay idempotent.
func Transition(from, to State) error {
	if from == to {
		return nil
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

// CanRecord reports whether a run in state from may have the outcome to
// recorded on it. Recording passes through EVALUATED.
func CanRecord(from, to State) error {
	if from == StatePending {
		if err := Transition(StatePending, StateEvaluated); err != nil {
			return err
		}
		return Transition(StateEvaluated, to)
	}
	return Transition(from, to)
}

// StateOf derives the promotion state persisted on a run's tags.
func StateOf(run tracking.Run) State {
	if run.Tag(TagRegisteredVer) != "" {
		return StateRegistered
	}
	switch strings.ToLower(run.Tag(TagEvaluationStatus)) {
	case StatusAccepted:
		return StateAccepted
	case StatusRejected:
		return StateRejected
	}
	return StatePending
}

func decisionState(accepted bool) State {
	if accepted {
		return StateAccepted
	}
	return StateRejected
}
