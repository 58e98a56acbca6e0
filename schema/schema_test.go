package schema_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/schema"
)

func TestValidateFlagsMissingRequiredField(t *testing.T) {
	r := schema.NewRegistry()
	result := r.Validate(bus.EventAgentInvoked, map[string]any{"agent_type": "builder"})
	assert.False(t, result.OK())
	require.Len(t, result.Violations, 1)
	assert.Equal(t, "agent_id", result.Violations[0].Field)
}

func TestValidateAcceptsUnknownEventTypeAsUnvalidated(t *testing.T) {
	r := schema.NewRegistry()
	result := r.Validate(bus.EventType("made.up"), map[string]any{"anything": 1})
	assert.True(t, result.Unvalidated)
	assert.True(t, result.OK())
}

func TestValidateEnforcesEnum(t *testing.T) {
	r := schema.NewRegistry()
	result := r.Validate(bus.EventModelSelected, map[string]any{"tier": "ultra", "model": "x"})
	assert.False(t, result.OK())
}

func TestValidatingBusDropsInvalidPublishWithoutFanOut(t *testing.T) {
	inner := bus.New()
	r := schema.NewRegistry()
	vb := schema.NewValidatingBus(inner, r, nil)

	received := make(chan bus.Event, 1)
	vb.Subscribe(bus.EventAgentInvoked, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		received <- e
		return nil
	}), bus.NonBlocking)

	vb.Publish(context.Background(), bus.NewEvent(bus.EventAgentInvoked, "s1", map[string]any{"agent_type": "builder"}))

	select {
	case <-received:
		t.Fatal("invalid event should not have reached the subscriber")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestValidatingBusPublishAndWaitReturnsValidationError(t *testing.T) {
	vb := schema.NewValidatingBus(bus.New(), schema.NewRegistry(), nil)
	err := vb.PublishAndWait(context.Background(), bus.NewEvent(bus.EventAgentInvoked, "s1", map[string]any{}))
	require.Error(t, err)
}

func TestValidatingBusPassesValidEventThrough(t *testing.T) {
	inner := bus.New()
	vb := schema.NewValidatingBus(inner, schema.NewRegistry(), nil)

	received := make(chan bus.Event, 1)
	vb.Subscribe(bus.EventAgentInvoked, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		received <- e
		return nil
	}), bus.NonBlocking)

	require.NoError(t, vb.PublishAndWait(context.Background(), bus.NewEvent(bus.EventAgentInvoked, "s1", map[string]any{"agent_id": "a1"})))

	select {
	case e := <-received:
		agentID, _ := e.Get("agent_id")
		assert.Equal(t, "a1", agentID)
	case <-time.After(time.Second):
		t.Fatal("expected event to reach subscriber")
	}
}
