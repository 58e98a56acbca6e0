package controlplane_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/config"
	"github.com/subagentctl/subagentctl/controlplane"
	"github.com/subagentctl/subagentctl/model"
	"github.com/subagentctl/subagentctl/runtime"
)

func newControlPlane(t *testing.T) *controlplane.ControlPlane {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Analytics.Enabled = false
	rt := runtime.New(runtime.Options{Config: cfg})
	t.Cleanup(rt.Close)
	return controlplane.New(rt)
}

func waitForEvent(t *testing.T, ch <-chan bus.Event) bus.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return bus.Event{}
	}
}

func TestAgentSpawnPublishesAgentInvoked(t *testing.T) {
	cp := newControlPlane(t)
	invoked := make(chan bus.Event, 1)
	cp.Bus.Subscribe(bus.EventAgentInvoked, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		invoked <- e
		return nil
	}), bus.NonBlocking)

	rec, err := cp.AgentSpawn(context.Background(), "scout", "claude-haiku", model.Budget{}, "sess1", "task1", nil)
	require.NoError(t, err)
	assert.Equal(t, model.AgentPending, rec.Status)

	e := waitForEvent(t, invoked)
	agentID, _ := e.Get("agent_id")
	assert.Equal(t, rec.AgentID, agentID)
}

func TestAgentSwitchModelPublishesModelSelected(t *testing.T) {
	cp := newControlPlane(t)
	selected := make(chan bus.Event, 1)
	cp.Bus.Subscribe(bus.EventModelSelected, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		selected <- e
		return nil
	}), bus.NonBlocking)

	rec, err := cp.AgentSpawn(context.Background(), "builder", "claude-haiku", model.Budget{}, "sess1", "", nil)
	require.NoError(t, err)

	updated, err := cp.AgentSwitchModel(context.Background(), rec.AgentID, "claude-sonnet", "escalation")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet", updated.Model)

	e := waitForEvent(t, selected)
	m, _ := e.Get("model")
	assert.Equal(t, "claude-sonnet", m)
}

func TestAgentHeartbeatForceTerminatesOnHardBudgetBreachAndPublishesTimeout(t *testing.T) {
	cp := newControlPlane(t)
	timeout := make(chan bus.Event, 1)
	cp.Bus.Subscribe(bus.EventAgentTimeout, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		timeout <- e
		return nil
	}), bus.NonBlocking)

	budget := model.Budget{HeartbeatTimeoutSeconds: 1}
	rec, err := cp.AgentSpawn(context.Background(), "builder", "claude-haiku", budget, "sess1", "", nil)
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	_, err = cp.Agents.Update(context.Background(), rec.AgentID, func(r *model.AgentRecord) {
		r.Status = model.AgentRunning
		r.StartedAt = &past
		r.LastHeartbeat = &past
	})
	require.NoError(t, err)

	result, err := cp.AgentHeartbeat(context.Background(), rec.AgentID, model.Metrics{})
	require.NoError(t, err)
	assert.True(t, result.Verdict.Exceeded)
	assert.Equal(t, model.AgentTerminated, result.Agent.Status)

	e := waitForEvent(t, timeout)
	reason, _ := e.Get("reason")
	assert.Equal(t, "heartbeat_timeout", reason)
}

func TestAgentHeartbeatWithinBudgetDoesNotTerminate(t *testing.T) {
	cp := newControlPlane(t)
	budget := model.Budget{TokenLimit: 100000}
	rec, err := cp.AgentSpawn(context.Background(), "builder", "claude-haiku", budget, "sess1", "", nil)
	require.NoError(t, err)

	result, err := cp.AgentHeartbeat(context.Background(), rec.AgentID, model.Metrics{TokensUsed: 10})
	require.NoError(t, err)
	assert.False(t, result.Verdict.Exceeded)
	assert.NotEqual(t, model.AgentTerminated, result.Agent.Status)
}

func TestLogsFiltersByTaskID(t *testing.T) {
	cp := newControlPlane(t)
	ctx := context.Background()

	sess, err := cp.SessionStart(ctx, "", nil)
	require.NoError(t, err)

	cp.Bus.Publish(ctx, bus.NewEvent(bus.EventTaskStarted, sess.SessionID, map[string]any{"task_id": "t1"}))
	cp.Bus.Publish(ctx, bus.NewEvent(bus.EventTaskStarted, sess.SessionID, map[string]any{"task_id": "t2"}))
	require.NoError(t, cp.Runtime.Logs.Flush(ctx, sess.SessionID))

	lines, err := cp.Logs(controlplane.LogsFilter{Session: sess.SessionID, TaskID: "t1", Lines: 100})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "t1", lines[0].TaskID)
}

func TestLogsRequiresSession(t *testing.T) {
	cp := newControlPlane(t)
	_, err := cp.Logs(controlplane.LogsFilter{Lines: 10})
	assert.Error(t, err)
}

func TestStatusAggregatesSessionAgentsAndApprovals(t *testing.T) {
	cp := newControlPlane(t)
	ctx := context.Background()

	sess, err := cp.SessionStart(ctx, "", nil)
	require.NoError(t, err)

	_, err = cp.AgentSpawn(ctx, "scout", "claude-haiku", model.Budget{}, sess.SessionID, "", nil)
	require.NoError(t, err)

	report, err := cp.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, report.Session)
	assert.Equal(t, sess.SessionID, report.Session.SessionID)
	assert.Equal(t, 1, report.AgentsByStatus[model.AgentPending])
}

func TestMetricsReportRejectsUnknownScope(t *testing.T) {
	cp := newControlPlane(t)
	_, err := cp.Metrics(controlplane.MetricsScope("bogus"), "x")
	assert.Error(t, err)
}

func TestMetricsReportEchoesRequestedScope(t *testing.T) {
	cp := newControlPlane(t)
	report, err := cp.Metrics(controlplane.ScopeSession, "sess1")
	require.NoError(t, err)
	assert.Equal(t, controlplane.ScopeSession, report.Scope)
	assert.Equal(t, "sess1", report.ScopeID)
}

func TestReviewRunsConfiguredGates(t *testing.T) {
	cp := newControlPlane(t)
	summary := cp.Review(context.Background(), "sess1", controlplane.ReviewInput{
		TaskID:         "t1",
		ModifiedPaths:  []string{filepath.Join("pkg", "thing.go")},
		Files:          map[string]string{filepath.Join("pkg", "thing.go"): "package pkg\n"},
		CanModifyTests: false,
	})
	require.Len(t, summary.Results, 2)
	assert.True(t, summary.Passed)
}
