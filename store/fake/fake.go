// Package fake is an in-memory Store that records every call, for tests.
package fake

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/glemaitre/ramp-board-1/domain"
	"github.com/glemaitre/ramp-board-1/store"
)

// FoldUpdate is one recorded UpdateSubmissionOnCVFold call.
type FoldUpdate struct {
	Fold domain.CVFold
	Path string
}

type Store struct {
	mu          sync.Mutex
	submissions map[int64]*domain.Submission
	folds       map[int64][]domain.CVFold
	history     map[int64][]domain.State

	FoldUpdates        []FoldUpdate
	LeaderboardUpdates map[string]int
	UserBoardUpdates   map[string]int
	// Returned by every write when set.
	WriteErr error
	// Returned by UpdateSubmissionOnCVFold for these submission ids.
	FoldErr map[int64]error
}

func NewStore() *Store {
	return &Store{
		submissions:        make(map[int64]*domain.Submission),
		folds:              make(map[int64][]domain.CVFold),
		history:            make(map[int64][]domain.State),
		LeaderboardUpdates: make(map[string]int),
		UserBoardUpdates:   make(map[string]int),
		FoldErr:            make(map[int64]error),
	}
}

// Add stores a copy of s with nFolds cross-validation folds.
func (s *Store) Add(sub domain.Submission, nFolds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.State == "" {
		sub.State = domain.New
	}
	c := sub
	s.submissions[sub.ID] = &c
	s.history[sub.ID] = []domain.State{sub.State}
	folds := make([]domain.CVFold, nFolds)
	for i := range folds {
		folds[i] = domain.CVFold{ID: sub.ID*100 + int64(i), SubmissionID: sub.ID, Index: i}
	}
	s.folds[sub.ID] = folds
}

func (s *Store) GetNewSubmissions(ctx context.Context, event string) ([]*domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectLocked(func(sub *domain.Submission) bool {
		return sub.EventName == event && sub.State == domain.New
	}), nil
}

func (s *Store) GetSubmissions(ctx context.Context, event string, stateFilter string) ([]*domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectLocked(func(sub *domain.Submission) bool {
		return sub.EventName == event && strings.Contains(string(sub.State), stateFilter)
	}), nil
}

// Copies in id order.
func (s *Store) selectLocked(keep func(*domain.Submission) bool) []*domain.Submission {
	var out []*domain.Submission
	for _, sub := range s.submissions {
		if keep(sub) {
			c := *sub
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) SetSubmissionState(ctx context.Context, id int64, state domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	sub, ok := s.submissions[id]
	if !ok {
		return store.ErrNotFound
	}
	sub.State = state
	s.history[id] = append(s.history[id], state)
	return nil
}

func (s *Store) SetSubmissionError(ctx context.Context, id int64, msg string) error {
	return s.update(id, func(sub *domain.Submission) { sub.ErrorMsg = msg })
}

func (s *Store) SetSubmissionMaxRAM(ctx context.Context, id int64, mb float64) error {
	return s.update(id, func(sub *domain.Submission) { sub.MaxRAM = mb })
}

func (s *Store) update(id int64, f func(*domain.Submission)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	sub, ok := s.submissions[id]
	if !ok {
		return store.ErrNotFound
	}
	f(sub)
	return nil
}

func (s *Store) GetSubmissionOnCVFolds(ctx context.Context, id int64) ([]domain.CVFold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submissions[id]; !ok {
		return nil, store.ErrNotFound
	}
	return append([]domain.CVFold{}, s.folds[id]...), nil
}

func (s *Store) UpdateSubmissionOnCVFold(ctx context.Context, fold domain.CVFold, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FoldErr[fold.SubmissionID]; err != nil {
		return err
	}
	s.FoldUpdates = append(s.FoldUpdates, FoldUpdate{fold, path})
	return nil
}

func (s *Store) UpdateLeaderboards(ctx context.Context, event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LeaderboardUpdates[event]++
	return nil
}

func (s *Store) UpdateAllUserLeaderboards(ctx context.Context, event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserBoardUpdates[event]++
	return nil
}

// Get returns a copy of the submission, nil if unknown.
func (s *Store) Get(id int64) *domain.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return nil
	}
	c := *sub
	return &c
}

// History returns every state the submission went through, starting with
// the one it was added with.
func (s *Store) History(id int64) []domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.State{}, s.history[id]...)
}

// FoldUpdatesFor returns the fold updates recorded for one submission.
func (s *Store) FoldUpdatesFor(id int64) []FoldUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []FoldUpdate
	for _, u := range s.FoldUpdates {
		if u.Fold.SubmissionID == id {
			out = append(out, u)
		}
	}
	return out
}

// CountState counts submissions of every event currently in state.
func (s *Store) CountState(state domain.State) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.submissions {
		if sub.State == state {
			n++
		}
	}
	return n
}
