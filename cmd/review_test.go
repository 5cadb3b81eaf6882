package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dlerrors "github.com/daylogger/daylog/pkg/errors"
	"github.com/daylogger/daylog/pkg/worklog"
)

// fakeReviewStore keeps work items in memory and mimics the repository's
// review semantics.
type fakeReviewStore struct {
	items map[string]*worklog.WorkItem
}

func newFakeReviewStore(items ...*worklog.WorkItem) *fakeReviewStore {
	s := &fakeReviewStore{items: make(map[string]*worklog.WorkItem)}
	for _, w := range items {
		s.items[w.ID] = w
	}
	return s
}

func (s *fakeReviewStore) ListNeedingReview(_ context.Context, userID string, _ int) ([]worklog.WorkItem, error) {
	var out []worklog.WorkItem
	for _, w := range s.items {
		if w.UserID == userID && w.NeedsReview && w.Status != worklog.StatusCancelled {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (s *fakeReviewStore) ClearReview(_ context.Context, id string, actualMinutes *int) error {
	w, ok := s.items[id]
	if !ok {
		return dlerrors.ErrNotFound
	}
	w.NeedsReview = false
	if actualMinutes != nil {
		w.ActualMinutes = actualMinutes
	}
	return nil
}

func (s *fakeReviewStore) UpdateStatus(_ context.Context, id string, status worklog.WorkItemStatus) error {
	w, ok := s.items[id]
	if !ok {
		return dlerrors.ErrNotFound
	}
	w.Status = status
	return nil
}

func (s *fakeReviewStore) RecordActualMinutes(_ context.Context, id string, minutes int) error {
	w, ok := s.items[id]
	if !ok {
		return dlerrors.ErrNotFound
	}
	w.ActualMinutes = &minutes
	return nil
}

func reviewItem(id string) *worklog.WorkItem {
	return &worklog.WorkItem{
		ID:               id,
		UserID:           "alice",
		Description:      "Maybe helped with deploy",
		EstimatedMinutes: 60,
		Confidence:       0.6,
		Status:           worklog.StatusPending,
		NeedsReview:      true,
	}
}

func TestReviewConfirmClearsFlag(t *testing.T) {
	s := newFakeReviewStore(reviewItem("wi-1"))
	var out bytes.Buffer

	require.NoError(t, runReviewConfirm(context.Background(), s, &out, "wi-1", nil))

	assert.False(t, s.items["wi-1"].NeedsReview)
	assert.Nil(t, s.items["wi-1"].ActualMinutes)
	assert.Contains(t, out.String(), "confirmed wi-1")

	// Once confirmed the item leaves the review backlog.
	listed, err := s.ListNeedingReview(context.Background(), "alice", 50)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestReviewConfirmCorrectsMinutes(t *testing.T) {
	s := newFakeReviewStore(reviewItem("wi-1"))
	minutes := 90

	require.NoError(t, runReviewConfirm(context.Background(), s, &bytes.Buffer{}, "wi-1", &minutes))

	assert.False(t, s.items["wi-1"].NeedsReview)
	require.NotNil(t, s.items["wi-1"].ActualMinutes)
	assert.Equal(t, 90, *s.items["wi-1"].ActualMinutes)
	assert.Equal(t, 90, s.items["wi-1"].Minutes())
}

func TestReviewRejectCancelsItem(t *testing.T) {
	s := newFakeReviewStore(reviewItem("wi-1"))

	require.NoError(t, runReviewReject(context.Background(), s, &bytes.Buffer{}, "wi-1"))

	assert.Equal(t, worklog.StatusCancelled, s.items["wi-1"].Status)

	listed, err := s.ListNeedingReview(context.Background(), "alice", 50)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestReviewConfirmUnknownItem(t *testing.T) {
	s := newFakeReviewStore()

	err := runReviewConfirm(context.Background(), s, &bytes.Buffer{}, "missing", nil)
	require.Error(t, err)
	assert.True(t, dlerrors.IsNotFound(err))
}

func TestTrackRecordsActualMinutes(t *testing.T) {
	s := newFakeReviewStore(reviewItem("wi-1"))
	var out bytes.Buffer

	require.NoError(t, runTrack(context.Background(), s, &out, "wi-1", 45))

	require.NotNil(t, s.items["wi-1"].ActualMinutes)
	assert.Equal(t, 45, *s.items["wi-1"].ActualMinutes)
	assert.Contains(t, out.String(), "recorded 45m on wi-1")
}
