package hooks_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/hooks"
)

type fakeEngine struct {
	verdict string
	err     error
	delay   time.Duration
}

func (f fakeEngine) Run(string, hooks.ScriptContext) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.verdict, f.err
}

func writeScript(t *testing.T, dir string, stage hooks.Stage, name, body string) {
	t.Helper()
	stageDir := filepath.Join(dir, string(stage))
	require.NoError(t, os.MkdirAll(stageDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stageDir, name), []byte(body), 0o644))
}

func TestNoopEngineAlwaysAllows(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, hooks.StagePreAgentInvocation, "check.js", "function execute(c) { return 'DENY'; }")
	d := hooks.New(dir, nil, nil)

	ok, _ := d.RunPre(context.Background(), "s1", "a1", map[string]any{})
	assert.True(t, ok, "NoopEngine should fail open regardless of script content")
}

func TestDenyVerdictBlocksAndPublishesAgentBlocked(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, hooks.StagePreAgentInvocation, "deny.js", "")
	b := bus.New()
	blocked := make(chan bus.Event, 1)
	b.Subscribe(bus.EventAgentBlocked, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		blocked <- e
		return nil
	}), bus.NonBlocking)

	d := hooks.New(dir, fakeEngine{verdict: "DENY"}, b)
	ok, reason := d.RunPre(context.Background(), "s1", "a1", map[string]any{})
	assert.False(t, ok)
	assert.NotEmpty(t, reason)

	select {
	case e := <-blocked:
		assert.Equal(t, "s1", e.SessionID())
	case <-time.After(time.Second):
		t.Fatal("expected agent.blocked event")
	}
}

func TestHookTimeoutIsolatedFromOtherHooks(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, hooks.StagePreAgentInvocation, "1_slow.js", "slow")
	writeScript(t, dir, hooks.StagePreAgentInvocation, "2_allow.js", "")

	var calls int32
	engine := &countingEngine{fakeEngine: fakeEngine{verdict: "ALLOW"}, onCall: func() { atomic.AddInt32(&calls, 1) }}
	d := hooks.New(dir, engine, nil)

	ok, _ := d.RunPre(context.Background(), "s1", "a1", map[string]any{})
	assert.True(t, ok)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "second hook still runs even if discovery order puts a slow one first")
}

type countingEngine struct {
	fakeEngine
	onCall func()
}

func (c *countingEngine) Run(script string, ctx hooks.ScriptContext) (string, error) {
	c.onCall()
	if script == "slow" {
		// Outlasts the dispatcher's 1s per-hook timeout.
		slow := c.fakeEngine
		slow.delay = 2 * time.Second
		return slow.Run(script, ctx)
	}
	return c.fakeEngine.Run(script, ctx)
}
