package domain

import (
	"strings"

	"github.com/pkg/errors"
)

type State string

const (
	New            State = "new"
	SendToTraining State = "send_to_training"
	Training       State = "training"
	Trained        State = "trained"
	TrainedError   State = "trained_error"
)

// TrainingMarker is matched as a substring by the recovery sweep.
const TrainingMarker = "training"

// InTraining is true for every state a crashed dispatcher may have left behind.
func (s State) InTraining() bool {
	return strings.Contains(string(s), TrainingMarker)
}

func (s State) IsTerminal() bool {
	return s == Trained || s == TrainedError
}

// IsError matches any error state, including ones this engine never sets
// itself (e.g. "tested_error").
func (s State) IsError() bool {
	return strings.Contains(string(s), "error")
}

var forward = map[State]State{
	New:            SendToTraining,
	SendToTraining: Training,
}

// CanTransitionTo reports whether the dispatcher may move a submission from s
// to next. Resetting an in-training state to New is the only backwards edge.
func (s State) CanTransitionTo(next State) bool {
	if n, ok := forward[s]; ok && n == next {
		return true
	}
	if s == Training && next.IsTerminal() {
		return true
	}
	return next == New && s.InTraining()
}

// Transition returns an error when moving from s to next breaks the ordering
// new, send_to_training, training, trained|trained_error.
func Transition(s, next State) error {
	if !s.CanTransitionTo(next) {
		return errors.Errorf("invalid state transition %s -> %s", s, next)
	}
	return nil
}
