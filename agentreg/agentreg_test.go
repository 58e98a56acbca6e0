package agentreg_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subagentctl/subagentctl/agentreg"
	"github.com/subagentctl/subagentctl/agentreg/inmem"
	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/model"
)

func TestTransitionLifecycle(t *testing.T) {
	ctx := context.Background()
	b := bus.New()
	reg := agentreg.New(inmem.New(), b)

	rec, err := reg.Create(ctx, "worker", "claude-haiku", model.Budget{}, "s1", "", nil)
	require.NoError(t, err)
	assert.Equal(t, model.AgentPending, rec.Status)

	rec, err = reg.Transition(ctx, rec.AgentID, model.AgentRunning, "", "")
	require.NoError(t, err)
	assert.Equal(t, model.AgentRunning, rec.Status)
	assert.NotNil(t, rec.StartedAt)

	rec, err = reg.Transition(ctx, rec.AgentID, model.AgentCompleted, "", "")
	require.NoError(t, err)
	assert.Equal(t, model.AgentCompleted, rec.Status)
	assert.NotNil(t, rec.CompletedAt)
}

func TestTerminalTransitionIsNoOp(t *testing.T) {
	ctx := context.Background()
	reg := agentreg.New(inmem.New(), nil)

	rec, err := reg.Create(ctx, "worker", "claude-haiku", model.Budget{}, "s1", "", nil)
	require.NoError(t, err)
	rec, err = reg.Transition(ctx, rec.AgentID, model.AgentRunning, "", "")
	require.NoError(t, err)
	rec, err = reg.Transition(ctx, rec.AgentID, model.AgentFailed, "token_limit", "boom")
	require.NoError(t, err)
	assert.Equal(t, model.AgentFailed, rec.Status)

	// Leaving a terminal state is a no-op (spec invariant 3): status stays
	// failed even though "running" is requested.
	rec2, err := reg.Transition(ctx, rec.AgentID, model.AgentRunning, "", "")
	require.NoError(t, err)
	assert.Equal(t, model.AgentFailed, rec2.Status)
}

func TestIllegalTransitionRejected(t *testing.T) {
	ctx := context.Background()
	reg := agentreg.New(inmem.New(), nil)

	rec, err := reg.Create(ctx, "worker", "claude-haiku", model.Budget{}, "s1", "", nil)
	require.NoError(t, err)

	_, err = reg.Transition(ctx, rec.AgentID, model.AgentPaused, "", "")
	assert.Error(t, err) // pending -> paused is not a legal edge
}

func TestPauseResumeBoundHandle(t *testing.T) {
	ctx := context.Background()
	reg := agentreg.New(inmem.New(), nil)
	rec, err := reg.Create(ctx, "worker", "m", model.Budget{}, "s1", "", nil)
	require.NoError(t, err)
	_, err = reg.Transition(ctx, rec.AgentID, model.AgentRunning, "", "")
	require.NoError(t, err)

	h := agentreg.NewCooperativeHandle()
	reg.BindProcess(rec.AgentID, h)

	_, err = reg.Pause(ctx, rec.AgentID)
	require.NoError(t, err)
	assert.True(t, h.Paused())

	_, err = reg.Resume(ctx, rec.AgentID)
	require.NoError(t, err)
	assert.False(t, h.Paused())

	_, err = reg.Terminate(ctx, rec.AgentID, "manual")
	require.NoError(t, err)
	assert.True(t, h.Stopped())
}
