package trigger_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/trigger"
)

func TestSnapshotTriggerFiresAtAgentCountThreshold(t *testing.T) {
	b := bus.New()
	created := make(chan bus.Event, 4)
	b.Subscribe(bus.EventSnapshotCreated, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		created <- e
		return nil
	}), bus.NonBlocking)

	var calls int32
	tg := trigger.NewSnapshotTrigger(3, func(ctx context.Context, reason string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, b, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, tg.HandleEvent(context.Background(), bus.NewEvent(bus.EventAgentInvoked, "s1", map[string]any{"agent_id": "a"})))
	}

	select {
	case e := <-created:
		assert.Equal(t, "s1", e.SessionID())
	case <-time.After(2 * time.Second):
		t.Fatal("expected snapshot.created event")
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestSnapshotTriggerFiresOnTokenWarningAbove70Percent(t *testing.T) {
	b := bus.New()
	var calls int32
	tg := trigger.NewSnapshotTrigger(1000, func(ctx context.Context, reason string) error {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "token_limit_75", reason)
		return nil
	}, b, nil)

	require.NoError(t, tg.HandleEvent(context.Background(), bus.NewEvent(bus.EventSessionTokenWarning, "s1", map[string]any{"percent": 75})))
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestReferenceCheckTriggerSelectsTopKIncomplete(t *testing.T) {
	b := bus.New()
	completed := make(chan bus.Event, 1)
	b.Subscribe(bus.EventReferenceCheckCompleted, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		completed <- e
		return nil
	}), bus.NonBlocking)

	reqs := []trigger.Requirement{
		{ID: "r1", Priority: 1, Complete: false},
		{ID: "r2", Priority: 5, Complete: false},
		{ID: "r3", Priority: 3, Complete: true},
	}
	tg := trigger.NewReferenceCheckTrigger(1, 0, 1, func(context.Context) ([]trigger.Requirement, error) {
		return reqs, nil
	}, func(selected []trigger.Requirement) string {
		return selected[0].ID
	}, b, nil)

	require.NoError(t, tg.Force(context.Background(), "s1"))

	select {
	case e := <-completed:
		prompt, _ := e.Get("prompt")
		assert.Equal(t, "r2", prompt) // highest priority incomplete requirement
	case <-time.After(2 * time.Second):
		t.Fatal("expected reference_check.completed event")
	}
}
