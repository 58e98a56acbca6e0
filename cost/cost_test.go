package cost_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/cost"
	"github.com/subagentctl/subagentctl/router"
)

func TestHandleEventComputesCostAndPublishesCostTracked(t *testing.T) {
	b := bus.New()
	tracked := make(chan bus.Event, 1)
	b.Subscribe(bus.EventCostTracked, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		tracked <- e
		return nil
	}), bus.NonBlocking)

	tr := cost.New(nil, cost.DefaultBudget(), b)
	err := tr.HandleEvent(context.Background(), bus.NewEvent(bus.EventAgentCompleted, "s1", map[string]any{
		"agent_id": "a1", "model": "claude-sonnet-4", "input_tokens": 1_000_000.0, "output_tokens": 500_000.0,
	}))
	require.NoError(t, err)

	select {
	case e := <-tracked:
		v, _ := e.Get("cost_usd")
		assert.InDelta(t, 3.00+7.50, v.(float64), 0.01)
	case <-time.After(time.Second):
		t.Fatal("expected cost.tracked event")
	}
}

func TestUnknownModelCostsZero(t *testing.T) {
	b := bus.New()
	tracked := make(chan bus.Event, 1)
	b.Subscribe(bus.EventCostTracked, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		tracked <- e
		return nil
	}), bus.NonBlocking)

	tr := cost.New(nil, cost.DefaultBudget(), b)
	require.NoError(t, tr.HandleEvent(context.Background(), bus.NewEvent(bus.EventAgentCompleted, "s1", map[string]any{
		"agent_id": "a1", "model": "unknown-model", "input_tokens": 1000.0,
	})))

	e := <-tracked
	v, _ := e.Get("cost_usd")
	assert.Equal(t, 0.0, v.(float64))
}

func TestBudgetWarningFiresOncePerWindowThreshold(t *testing.T) {
	b := bus.New()
	warnings := make(chan bus.Event, 8)
	b.Subscribe(bus.EventCostBudgetWarning, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		warnings <- e
		return nil
	}), bus.NonBlocking)

	budget := cost.Budget{HourlyCapUSD: 1.0, DailyCapUSD: 100, Thresholds: []int{50, 70, 90}}
	tr := cost.New(nil, budget, b)

	now := time.Now()
	for i := 0; i < 3; i++ {
		e := bus.NewEvent(bus.EventAgentCompleted, "s1", map[string]any{
			"agent_id": "a1", "model": "claude-opus-4", "input_tokens": 10000.0, "output_tokens": 10000.0,
		}, bus.WithTimestamp(now))
		require.NoError(t, tr.HandleEvent(context.Background(), e))
	}

	close(warnings)
	seen := map[string]bool{}
	for e := range warnings {
		threshold, _ := e.Get("threshold")
		window, _ := e.Get("window")
		key := fmt.Sprintf("%s|%v", window.(string), threshold)
		assert.False(t, seen[key], "duplicate warning for %s", key)
		seen[key] = true
	}
	assert.NotEmpty(t, seen)
}

func TestOptimizeSuggestsCheaperTierAboveThreshold(t *testing.T) {
	tr := cost.New(nil, cost.DefaultBudget(), nil)
	now := time.Now()
	for i := 0; i < 5; i++ {
		e := bus.NewEvent(bus.EventAgentCompleted, "s1", map[string]any{
			"agent_id": "a1", "model": "claude-opus-4", "input_tokens": 1_000_000.0, "output_tokens": 1_000_000.0,
		}, bus.WithTimestamp(now))
		require.NoError(t, tr.HandleEvent(context.Background(), e))
	}

	suggestions := tr.Optimize(router.DefaultConfig(), 10.0)
	require.NotEmpty(t, suggestions)
	assert.Equal(t, "claude-opus-4", suggestions[0].CurrentModel)
	assert.NotEqual(t, "claude-opus-4", suggestions[0].SuggestedModel)
	assert.Greater(t, suggestions[0].EstSavingsUSD, 0.0)
}
