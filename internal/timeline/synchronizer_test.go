package timeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ad-assistant/backend/internal/models"
	"ad-assistant/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu          sync.Mutex
	rows        []models.Message // oldest first
	feedbackErr error
	updates     []string
}

func (f *fakeStore) ListPage(_ context.Context, _ string, before *time.Time, limit int) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for i := len(f.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if before != nil && !f.rows[i].CreatedAt.Before(*before) {
			continue
		}
		out = append(out, f.rows[i])
	}
	return out, nil
}

func (f *fakeStore) GetByID(_ context.Context, _ string, id string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id {
			r := f.rows[i]
			return &r, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeStore) UpdateFeedback(_ context.Context, _ string, id string, feedback *models.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.feedbackErr != nil {
		return f.feedbackErr
	}
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].Feedback = feedback
		}
	}
	f.updates = append(f.updates, id)
	return nil
}

func newStore(n int) *fakeStore {
	s := &fakeStore{}
	for i := 0; i < n; i++ {
		s.rows = append(s.rows, row(i, ""))
	}
	return s
}

func TestSynchronizer_Paging(t *testing.T) {
	store := newStore(5)
	s := NewSynchronizer("u1", 2, store, logger.Discard())
	ctx := context.Background()

	tl, err := s.LoadInitial(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"row-003", "row-004"}, ids(tl))
	assert.True(t, tl.HasMore)

	tl, err = s.LoadMore(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"row-001", "row-002", "row-003", "row-004"}, ids(tl))

	tl, err = s.LoadMore(ctx)
	require.NoError(t, err)
	assert.Len(t, tl.Entries, 5)
	assert.False(t, tl.HasMore)

	// exhausted history is a no-op
	tl, err = s.LoadMore(ctx)
	require.NoError(t, err)
	assert.Len(t, tl.Entries, 5)

	tl, err = s.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, tl.HasMore)

	assert.Empty(t, s.Clear().Entries)
}

func TestSynchronizer_OptimisticThenPush(t *testing.T) {
	s := NewSynchronizer("u1", 10, newStore(0), logger.Discard())
	events, stop := s.Listen()
	defer stop()

	s.InsertOptimistic(Entry{ID: "msg_1", ClientID: "msg_1", Content: "hi", CreatedAt: base})
	persisted := row(1, "msg_1")
	s.ApplyPush(persisted)
	s.Confirm(persisted)

	tl := s.Snapshot()
	require.Len(t, tl.Entries, 1)
	assert.Equal(t, "row-001", tl.Entries[0].ID)

	first := <-events
	assert.Equal(t, EventMessage, first.Type)
	second := <-events
	assert.Equal(t, EventConfirmed, second.Type)
	assert.Equal(t, "row-001", second.Entry.ID)
	third := <-events
	assert.Equal(t, EventConfirmed, third.Type)

	s.ApplyPush(persisted)
	select {
	case ev := <-events:
		t.Fatalf("unexpected event for duplicate push: %s", ev.Type)
	default:
	}
}

func TestSynchronizer_ToggleFeedback(t *testing.T) {
	store := newStore(2)
	s := NewSynchronizer("u1", 10, store, logger.Discard())
	ctx := context.Background()
	_, err := s.LoadInitial(ctx)
	require.NoError(t, err)

	got, err := s.ToggleFeedback(ctx, "row-001", models.FeedbackPositive)
	require.NoError(t, err)
	require.NotNil(t, got)
	entry, _ := s.Snapshot().Find("row-001")
	assert.Equal(t, models.FeedbackPositive, *entry.Feedback)

	got, err = s.ToggleFeedback(ctx, "row-001", models.FeedbackPositive)
	require.NoError(t, err)
	assert.Nil(t, got)
	entry, _ = s.Snapshot().Find("row-001")
	assert.Nil(t, entry.Feedback)
	assert.Equal(t, []string{"row-001", "row-001"}, store.updates)
}

func TestSynchronizer_ToggleFeedbackStoreFailureLeavesState(t *testing.T) {
	store := newStore(1)
	s := NewSynchronizer("u1", 10, store, logger.Discard())
	ctx := context.Background()
	_, err := s.LoadInitial(ctx)
	require.NoError(t, err)

	store.feedbackErr = errors.New("db down")
	_, err = s.ToggleFeedback(ctx, "row-000", models.FeedbackNegative)
	require.Error(t, err)

	entry, _ := s.Snapshot().Find("row-000")
	assert.Nil(t, entry.Feedback)
}

func TestSynchronizer_ToggleFeedbackRejectsPending(t *testing.T) {
	s := NewSynchronizer("u1", 10, newStore(0), logger.Discard())
	s.InsertOptimistic(Entry{ID: "msg_2", ClientID: "msg_2", CreatedAt: base})

	_, err := s.ToggleFeedback(context.Background(), "msg_2", models.FeedbackPositive)
	assert.ErrorIs(t, err, ErrPending)
}

func TestSynchronizer_MarkImplemented(t *testing.T) {
	s := NewSynchronizer("u1", 10, newStore(1), logger.Discard())
	_, err := s.LoadInitial(context.Background())
	require.NoError(t, err)

	s.MarkImplemented("row-000")
	entry, ok := s.Snapshot().Find("row-000")
	require.True(t, ok)
	assert.True(t, entry.Implemented)
}

func TestSynchronizer_ListenUnregister(t *testing.T) {
	s := NewSynchronizer("u1", 10, newStore(0), logger.Discard())
	events, stop := s.Listen()
	assert.Equal(t, 1, s.Listeners())

	stop()
	stop()
	assert.Equal(t, 0, s.Listeners())

	_, open := <-events
	assert.False(t, open)

	// emitting with no listeners must not block
	s.Notify(Event{Type: EventStreaming, Text: "partial"})
}
