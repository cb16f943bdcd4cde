// Package domain holds the types shared by the dispatcher, the workers and the
// store adapters: submissions, their training state and cross-validation folds.
package domain

import "fmt"

// Submission is a unit of work tracked by the dispatcher.
// Basename is the name of the submission folder inside a ramp kit.
type Submission struct {
	ID          int64
	Basename    string
	EventName   string
	ProblemName string
	State       State
	ErrorMsg    string
	// Peak memory in MB, zero when unknown.
	MaxRAM float64
}

func (s *Submission) String() string {
	return fmt.Sprintf("submission{id: %d, name: %s, event: %s, state: %s}", s.ID, s.Basename, s.EventName, s.State)
}

// CVFold references one cross-validation fold of a submission.
// Index is the position of the fold; its outputs live under fold_<Index>.
type CVFold struct {
	ID           int64
	SubmissionID int64
	Index        int
}

// Dir is the name of the folder the fold's predictions are written to.
func (f CVFold) Dir() string {
	return fmt.Sprintf("fold_%d", f.Index)
}
