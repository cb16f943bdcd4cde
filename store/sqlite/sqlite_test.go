package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glemaitre/ramp-board-1/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSubmissionsAndStateFilter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	a, err := s.AddSubmission(ctx, domain.Submission{Basename: "a", EventName: "iris", ProblemName: "iris"}, 2)
	require.NoError(t, err)
	_, err = s.AddSubmission(ctx, domain.Submission{Basename: "b", EventName: "iris", ProblemName: "iris", State: domain.Training}, 2)
	require.NoError(t, err)
	_, err = s.AddSubmission(ctx, domain.Submission{Basename: "c", EventName: "boston", ProblemName: "boston"}, 2)
	require.NoError(t, err)

	subs, err := s.GetNewSubmissions(ctx, "iris")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, a, subs[0].ID)
	assert.Equal(t, "a", subs[0].Basename)
	assert.Equal(t, domain.New, subs[0].State)

	require.NoError(t, s.SetSubmissionState(ctx, a, domain.SendToTraining))
	training, err := s.GetSubmissions(ctx, "iris", domain.TrainingMarker)
	require.NoError(t, err)
	assert.Len(t, training, 2)

	all, err := s.GetSubmissions(ctx, "iris", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUnderscoreIsNotAWildcard(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.AddSubmission(ctx, domain.Submission{Basename: "a", EventName: "iris", ProblemName: "iris", State: "trainedXerror"}, 0)
	require.NoError(t, err)
	subs, err := s.GetSubmissions(ctx, "iris", "trained_error")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestWritesAndFolds(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	id, err := s.AddSubmission(ctx, domain.Submission{Basename: "a", EventName: "iris", ProblemName: "iris"}, 3)
	require.NoError(t, err)

	require.NoError(t, s.SetSubmissionError(ctx, id, "Traceback: boom"))
	require.NoError(t, s.SetSubmissionMaxRAM(ctx, id, 123.5))
	subs, err := s.GetSubmissions(ctx, "iris", "")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Traceback: boom", subs[0].ErrorMsg)
	assert.Equal(t, 123.5, subs[0].MaxRAM)

	folds, err := s.GetSubmissionOnCVFolds(ctx, id)
	require.NoError(t, err)
	require.Len(t, folds, 3)
	for i, f := range folds {
		assert.Equal(t, i, f.Index)
		assert.Equal(t, id, f.SubmissionID)
	}

	path := filepath.Join("predictions", "a", folds[1].Dir())
	require.NoError(t, s.UpdateSubmissionOnCVFold(ctx, folds[1], path))
	got, err := s.FoldPredictionsPath(ctx, folds[1].ID)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	err := s.SetSubmissionState(ctx, 42, domain.New)
	assert.True(t, IsNotFound(err), "%v", err)
	err = s.UpdateSubmissionOnCVFold(ctx, domain.CVFold{ID: 9}, "x")
	assert.True(t, IsNotFound(err), "%v", err)
	_, err = s.FoldPredictionsPath(ctx, 9)
	assert.True(t, IsNotFound(err), "%v", err)
}

func TestLeaderboardRefreshes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.UpdateLeaderboards(ctx, "iris"))
	require.NoError(t, s.UpdateLeaderboards(ctx, "iris"))
	require.NoError(t, s.UpdateAllUserLeaderboards(ctx, "iris"))

	n, err := s.RefreshCount(ctx, "iris", false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.RefreshCount(ctx, "iris", true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReopenFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "ramp.sqlite")
	s, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = s.AddSubmission(ctx, domain.Submission{Basename: "a", EventName: "iris", ProblemName: "iris"}, 1)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	subs, err := s.GetNewSubmissions(ctx, "iris")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}
