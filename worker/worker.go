// Package worker defines the lifecycle every execution variant implements.
// A Worker runs exactly one submission: it is set up, launched, polled until
// it leaves the running status, harvested, then torn down.
package worker

import (
	"context"
	"fmt"
	"regexp"

	"github.com/pkg/errors"

	"github.com/glemaitre/ramp-board-1/domain"
)

type Status int

const (
	NotStarted Status = iota
	Running
	Finished
	Failed
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	}
	return "not-started"
}

func (s Status) IsTerminal() bool {
	return s == Finished || s == Failed
}

// Result is what CollectResults harvested.
type Result struct {
	Success bool
	// Local folder holding the fold_<i> prediction folders.
	PredictionsDir string
	LogPath        string
	// Peak memory in MB, zero when not measured.
	MaxRAM float64
	// Traceback or reason of a failure.
	ErrorMsg string
}

type Worker interface {
	// Setup prepares the environment or node. Errors are not retried.
	Setup(ctx context.Context) error
	// LaunchSubmission starts the submission in the background and returns.
	LaunchSubmission(ctx context.Context) error
	// Status checks the background execution without blocking on it.
	Status(ctx context.Context) Status
	// CollectResults retrieves logs and predictions once Status is terminal.
	CollectResults(ctx context.Context) (Result, error)
	// Teardown releases everything the worker holds. Calling it again is a no-op.
	Teardown(ctx context.Context) error
}

// Aborter is implemented by workers that can kill a running submission.
type Aborter interface {
	Abort(ctx context.Context) error
}

// Config is the per submission bundle a Factory builds a Worker from.
type Config struct {
	Submission   string
	SubmissionID int64
	EventName    string

	KitDir         string
	DataDir        string
	SubmissionsDir string
	PredictionsDir string
	LogsDir        string
}

func (c Config) String() string {
	return fmt.Sprintf("%s (id %d, event %s)", c.Submission, c.SubmissionID, c.EventName)
}

// Submission names end up in paths, process titles and remote shell commands.
var submissionName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// CheckSubmissionName rejects anything but a plain folder name.
func CheckSubmissionName(name string) error {
	if !submissionName.MatchString(name) {
		return errors.Errorf("invalid submission name %q", name)
	}
	return nil
}

type Kind string

const (
	KindLocal Kind = "local"
	KindAWS   Kind = "aws"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindLocal, KindAWS:
		return Kind(s), nil
	}
	return "", errors.Errorf("unknown worker %q, expected %s or %s", s, KindLocal, KindAWS)
}

// Factory builds workers of one kind. It is chosen once at startup.
type Factory interface {
	Kind() Kind
	New(cfg Config) (Worker, error)
}

// Reaper is implemented by factories that can find and kill what a previous
// dispatcher left running for a submission.
type Reaper interface {
	Reap(ctx context.Context, sub *domain.Submission) error
}
