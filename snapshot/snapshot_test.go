package snapshot_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/snapshot"
)

func TestCreateListRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := bus.New()
	created := make(chan bus.Event, 1)
	b.Subscribe(bus.EventSnapshotCreated, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		created <- e
		return nil
	}), bus.NonBlocking)

	m := snapshot.New(dir, b, false)
	snap, err := m.Create(context.Background(), "sess1", "manual", 3, 1500, []string{"a.go", "b.go"}, "clean@main", map[string]any{"note": "checkpoint"})
	require.NoError(t, err)

	select {
	case e := <-created:
		assert.Equal(t, snap.SnapshotID, func() any { v, _ := e.Get("snapshot_id"); return v }())
	case <-time.After(time.Second):
		t.Fatal("expected snapshot.created event")
	}

	list, err := m.List("sess1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, snap.SnapshotID, list[0].SnapshotID)

	restored, err := m.Restore(snap.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, "clean@main", restored.GitState)
	assert.Equal(t, []string{"a.go", "b.go"}, restored.FilesInContext)
}

func TestCreateWithGzipRoundTrips(t *testing.T) {
	dir := t.TempDir()
	m := snapshot.New(dir, nil, true)
	snap, err := m.Create(context.Background(), "sess1", "auto", 1, 10, nil, "", nil)
	require.NoError(t, err)

	restored, err := m.Restore(snap.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, snap.SnapshotID, restored.SnapshotID)
}

func TestCleanupRemovesOldSnapshots(t *testing.T) {
	dir := t.TempDir()
	m := snapshot.New(dir, nil, false)
	_, err := m.Create(context.Background(), "sess1", "manual", 0, 0, nil, "", nil)
	require.NoError(t, err)

	removed, err := m.Cleanup(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	list, err := m.List("")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateHandoffSummaryIncludesLatestSnapshotAndEvents(t *testing.T) {
	dir := t.TempDir()
	m := snapshot.New(dir, nil, false)
	_, err := m.Create(context.Background(), "sess1", "manual", 2, 500, []string{"x.go"}, "dirty", nil)
	require.NoError(t, err)

	out, err := m.CreateHandoffSummary("sess1", "context_limit", []snapshot.LogLine{
		{Timestamp: time.Now(), EventType: "agent.completed", Summary: "builder finished"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "context_limit")
	assert.Contains(t, out, "builder finished")
	assert.Contains(t, out, "x.go")
}
