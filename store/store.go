// Package store describes the persistent store the dispatcher reads
// submissions from and writes their progress to. The real RAMP database lives
// behind this interface; sqlite is a reference adapter and fake is for tests.
package store

//go:generate mockgen -source=store.go -package=store -destination=store_mock.go

import (
	"context"

	"github.com/pkg/errors"

	"github.com/glemaitre/ramp-board-1/domain"
)

var ErrNotFound = errors.New("not found")

// Store is the dispatcher's view of the database. Every write is persisted
// before the call returns.
type Store interface {
	// GetNewSubmissions returns the submissions of event in state new.
	GetNewSubmissions(ctx context.Context, event string) ([]*domain.Submission, error)

	// GetSubmissions returns the submissions of event whose state contains
	// stateFilter, or all of them when stateFilter is empty.
	GetSubmissions(ctx context.Context, event string, stateFilter string) ([]*domain.Submission, error)

	SetSubmissionState(ctx context.Context, id int64, state domain.State) error

	SetSubmissionError(ctx context.Context, id int64, msg string) error

	SetSubmissionMaxRAM(ctx context.Context, id int64, mb float64) error

	GetSubmissionOnCVFolds(ctx context.Context, id int64) ([]domain.CVFold, error)

	// UpdateSubmissionOnCVFold loads the predictions found under path into fold.
	UpdateSubmissionOnCVFold(ctx context.Context, fold domain.CVFold, path string) error

	UpdateLeaderboards(ctx context.Context, event string) error

	UpdateAllUserLeaderboards(ctx context.Context, event string) error
}
