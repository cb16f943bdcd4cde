package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glemaitre/ramp-board-1/domain"
	"github.com/glemaitre/ramp-board-1/store"
	fakeworker "github.com/glemaitre/ramp-board-1/worker/fake"
)

func mockDispatcher(t *testing.T) (*Dispatcher, *store.MockStore, *gomock.Controller) {
	mockCtrl := gomock.NewController(t)
	ms := store.NewMockStore(mockCtrl)
	d := New(Config{
		EventName:      event,
		NWorker:        1,
		RecoverTimeout: 10 * time.Second,
		Paths:          Paths{Kits: "/kits", Predictions: "/preds"},
	}, ms, fakeworker.NewFactory(), nil)
	return d, ms, mockCtrl
}

func TestFetchPropagatesStoreError(t *testing.T) {
	d, ms, mockCtrl := mockDispatcher(t)
	defer mockCtrl.Finish()
	ctx := context.Background()

	ms.EXPECT().GetNewSubmissions(ctx, event).Return(nil, errors.New("connection lost"))
	err := d.Fetch(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection lost")
}

func TestReconcileCallOrder(t *testing.T) {
	d, ms, mockCtrl := mockDispatcher(t)
	defer mockCtrl.Finish()
	ctx := context.Background()
	sub := &domain.Submission{ID: 3, Basename: "starting_kit", EventName: event, State: domain.Trained}
	folds := []domain.CVFold{{ID: 30, SubmissionID: 3, Index: 0}, {ID: 31, SubmissionID: 3, Index: 1}}

	gomock.InOrder(
		ms.EXPECT().GetSubmissionOnCVFolds(ctx, int64(3)).Return(folds, nil),
		ms.EXPECT().UpdateSubmissionOnCVFold(ctx, folds[0], "/preds/starting_kit/fold_0").Return(nil),
		ms.EXPECT().UpdateSubmissionOnCVFold(ctx, folds[1], "/preds/starting_kit/fold_1").Return(nil),
		ms.EXPECT().UpdateLeaderboards(ctx, event).Return(nil),
		ms.EXPECT().UpdateAllUserLeaderboards(ctx, event).Return(nil),
	)
	d.results = []*domain.Submission{sub}
	require.NoError(t, d.Reconcile(ctx))
}

func TestReconcileSkipsErrorStates(t *testing.T) {
	d, _, mockCtrl := mockDispatcher(t)
	defer mockCtrl.Finish()
	// any store call fails the test
	d.results = []*domain.Submission{
		{ID: 1, Basename: "a", State: domain.TrainedError},
		{ID: 2, Basename: "b", State: domain.State("tested_error")},
	}
	require.NoError(t, d.Reconcile(context.Background()))
}

func TestRecoverRetriesListing(t *testing.T) {
	d, ms, mockCtrl := mockDispatcher(t)
	defer mockCtrl.Finish()
	ctx := context.Background()
	stale := &domain.Submission{ID: 9, Basename: "stale", EventName: event, State: domain.Training}

	gomock.InOrder(
		ms.EXPECT().GetSubmissions(gomock.Any(), event, domain.TrainingMarker).Return(nil, errors.New("database is locked")),
		ms.EXPECT().GetSubmissions(gomock.Any(), event, domain.TrainingMarker).Return([]*domain.Submission{stale}, nil),
		ms.EXPECT().SetSubmissionState(gomock.Any(), int64(9), domain.New).Return(nil),
	)
	require.NoError(t, d.Recover(ctx))
}

func TestRecoverReportsResetFailure(t *testing.T) {
	d, ms, mockCtrl := mockDispatcher(t)
	defer mockCtrl.Finish()
	ctx := context.Background()
	subs := []*domain.Submission{
		{ID: 1, Basename: "a", EventName: event, State: domain.Training},
		{ID: 2, Basename: "b", EventName: event, State: domain.SendToTraining},
	}

	ms.EXPECT().GetSubmissions(gomock.Any(), event, domain.TrainingMarker).Return(subs, nil)
	ms.EXPECT().SetSubmissionState(gomock.Any(), int64(1), domain.New).Return(errors.New("read-only"))
	ms.EXPECT().SetSubmissionState(gomock.Any(), int64(2), domain.New).Return(nil)
	assert.EqualError(t, d.Recover(ctx), "read-only")
}
