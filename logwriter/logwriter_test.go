package logwriter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/logwriter"
)

func TestHandleEventFlushesAtBufferSize(t *testing.T) {
	dir := t.TempDir()
	w := logwriter.New(dir, 2, false)

	e1 := bus.NewEvent(bus.EventAgentInvoked, "s1", map[string]any{"agent_id": "a1"})
	e2 := bus.NewEvent(bus.EventAgentCompleted, "s1", map[string]any{"agent_id": "a1"})

	require.NoError(t, w.HandleEvent(context.Background(), e1))
	require.NoError(t, w.HandleEvent(context.Background(), e2))

	lines, err := w.Tail("s1", 10)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "agent.invoked", lines[0].EventType)
	assert.Equal(t, "agent.completed", lines[1].EventType)
}

func TestExplicitFlushWritesPartialBuffer(t *testing.T) {
	dir := t.TempDir()
	w := logwriter.New(dir, 100, false)
	require.NoError(t, w.HandleEvent(context.Background(), bus.NewEvent(bus.EventToolUsed, "s2", map[string]any{"tool": "edit"})))
	require.NoError(t, w.Flush(context.Background(), "s2"))

	lines, err := w.Tail("s2", 10)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0].Summary, "tool=edit")
}

func TestGzipRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := logwriter.New(dir, 1, true)
	require.NoError(t, w.HandleEvent(context.Background(), bus.NewEvent(bus.EventSessionStarted, "s3", map[string]any{})))

	lines, err := w.Tail("s3", 10)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "session.started", lines[0].EventType)
}

func TestTailReturnsLastNLines(t *testing.T) {
	dir := t.TempDir()
	w := logwriter.New(dir, 1, false)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.HandleEvent(context.Background(), bus.NewEvent(bus.EventAgentInvoked, "s4", map[string]any{"agent_id": "a"})))
	}
	lines, err := w.Tail("s4", 2)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}
