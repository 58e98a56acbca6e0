package analytics_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subagentctl/subagentctl/analytics"
	"github.com/subagentctl/subagentctl/bus"
)

// fakeStore is an in-memory analytics.Store test double, following the
// teacher's run/inmem style of hand-written fakes instead of a mocking
// framework.
type fakeStore struct {
	mu       sync.Mutex
	agents   []analytics.AgentRow
	tools    []analytics.ToolUsageRow
	errors   []analytics.ErrorPatternRow
	sessions []analytics.SessionRow
	failNext bool
}

func (f *fakeStore) InsertAgents(_ context.Context, rows []analytics.AgentRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return assertErr
	}
	f.agents = append(f.agents, rows...)
	return nil
}
func (f *fakeStore) InsertToolUsage(_ context.Context, rows []analytics.ToolUsageRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools = append(f.tools, rows...)
	return nil
}
func (f *fakeStore) InsertErrorPatterns(_ context.Context, rows []analytics.ErrorPatternRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, rows...)
	return nil
}
func (f *fakeStore) UpsertSessionStart(_ context.Context, rows []analytics.SessionRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, rows...)
	return nil
}
func (f *fakeStore) UpdateSessionEnd(context.Context, string, time.Time, string) error { return nil }
func (f *fakeStore) PerformanceByAgent(context.Context) ([]analytics.AgentPerformance, error) {
	return nil, nil
}
func (f *fakeStore) ToolEffectiveness(context.Context) ([]analytics.ToolEffectivenessRow, error) {
	return nil, nil
}
func (f *fakeStore) ErrorPatterns(context.Context) ([]analytics.ErrorPatternSummary, error) {
	return nil, nil
}
func (f *fakeStore) SessionSummary(context.Context, string) (analytics.SessionSummary, error) {
	return analytics.SessionSummary{}, nil
}

var assertErr = assertError("commit failed")

type assertError string

func (e assertError) Error() string { return string(e) }

func TestIngesterFlushesAtBatchSize(t *testing.T) {
	store := &fakeStore{}
	ing := analytics.New(store, 2)

	require.NoError(t, ing.HandleEvent(context.Background(), bus.NewEvent(bus.EventAgentInvoked, "s1", map[string]any{"agent_id": "a1", "agent_type": "builder"})))
	require.NoError(t, ing.HandleEvent(context.Background(), bus.NewEvent(bus.EventAgentCompleted, "s1", map[string]any{"agent_id": "a1", "agent_type": "builder", "tokens_used": 500})))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.agents, 2)
}

func TestToolErrorProducesUsageAndErrorPatternRows(t *testing.T) {
	store := &fakeStore{}
	ing := analytics.New(store, 1)

	require.NoError(t, ing.HandleEvent(context.Background(), bus.NewEvent(bus.EventToolError, "s1", map[string]any{
		"agent_id": "a1", "tool": "bash", "error_kind": "timeout", "error": "deadline exceeded",
	})))

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.tools, 1)
	assert.False(t, store.tools[0].Success)
	require.Len(t, store.errors, 1)
	assert.Equal(t, "timeout", store.errors[0].ErrorKind)
}

func TestCommitFailureDropsBatchAndIncrementsErrorCount(t *testing.T) {
	store := &fakeStore{failNext: true}
	ing := analytics.New(store, 1)

	err := ing.HandleEvent(context.Background(), bus.NewEvent(bus.EventAgentInvoked, "s1", map[string]any{"agent_id": "a1"}))
	require.Error(t, err)
	assert.EqualValues(t, 1, ing.ErrorCount())
}

func TestSessionStartedBuffersThenFlushesOnShutdown(t *testing.T) {
	store := &fakeStore{}
	ing := analytics.New(store, 100)

	require.NoError(t, ing.HandleEvent(context.Background(), bus.NewEvent(bus.EventSessionStarted, "s1", map[string]any{})))
	store.mu.Lock()
	assert.Empty(t, store.sessions)
	store.mu.Unlock()

	require.NoError(t, ing.Flush(context.Background()))
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.sessions, 1)
}
