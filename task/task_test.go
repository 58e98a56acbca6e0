package task_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/model"
	"github.com/subagentctl/subagentctl/task"
)

func newStore(t *testing.T, b bus.Bus) *task.Store {
	t.Helper()
	return task.New(filepath.Join(t.TempDir(), "tasks.json"), b)
}

func TestCreateGetListRoundTrip(t *testing.T) {
	s := newStore(t, nil)
	rec, err := s.Create(context.Background(), "sess1", "Title", "desc", 5, []string{"must pass"}, []string{"ctx"})
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, rec.Status)

	got, ok, err := s.Get(rec.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Title", got.Title)

	all, err := s.List()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpdateChangesStatusAndPublishesStageChanged(t *testing.T) {
	b := bus.New()
	staged := make(chan bus.Event, 1)
	b.Subscribe(bus.EventTaskStageChanged, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		staged <- e
		return nil
	}), bus.NonBlocking)

	s := newStore(t, b)
	rec, err := s.Create(context.Background(), "sess1", "T", "d", 1, nil, nil)
	require.NoError(t, err)

	updated, err := s.Update(context.Background(), "sess1", rec.ID, func(r *model.TaskRecord) {
		r.Status = task.StatusInProgress
	})
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, updated.Status)

	select {
	case e := <-staged:
		v, _ := e.Get("status")
		assert.Equal(t, string(task.StatusInProgress), v)
	case <-time.After(time.Second):
		t.Fatal("expected task.stage_changed event")
	}
}

func TestCompleteMarksCompletedAndPublishesTaskCompleted(t *testing.T) {
	b := bus.New()
	completed := make(chan bus.Event, 1)
	b.Subscribe(bus.EventTaskCompleted, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		completed <- e
		return nil
	}), bus.NonBlocking)

	s := newStore(t, b)
	rec, err := s.Create(context.Background(), "sess1", "T", "d", 1, nil, nil)
	require.NoError(t, err)

	done, err := s.Complete(context.Background(), "sess1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	select {
	case <-completed:
	case <-time.After(time.Second):
		t.Fatal("expected task.completed event")
	}
}
