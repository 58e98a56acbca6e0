package budget_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/subagentctl/subagentctl/budget"
	"github.com/subagentctl/subagentctl/model"
)

func TestEvaluateTokenLimit(t *testing.T) {
	now := time.Now()
	started := now.Add(-time.Minute)
	rec := model.AgentRecord{
		Status:    model.AgentRunning,
		StartedAt: &started,
		Budget:    model.Budget{TokenLimit: 5},
		Metrics:   model.Metrics{TokensUsed: 10},
	}
	v := budget.Evaluate(rec, now, 0)
	assert.True(t, v.Exceeded)
	assert.Equal(t, budget.ReasonTokenLimit, v.Reason)
}

func TestEvaluateNoLimitsConfigured(t *testing.T) {
	now := time.Now()
	rec := model.AgentRecord{Status: model.AgentRunning}
	v := budget.Evaluate(rec, now, 0)
	assert.False(t, v.Exceeded)
	assert.Empty(t, v.Alerts)
}

func TestEvaluateMultipleLimits(t *testing.T) {
	now := time.Now()
	started := now.Add(-time.Hour)
	rec := model.AgentRecord{
		Status:    model.AgentRunning,
		StartedAt: &started,
		Budget:    model.Budget{TokenLimit: 5, TimeLimitSeconds: 10},
		Metrics:   model.Metrics{TokensUsed: 100},
	}
	v := budget.Evaluate(rec, now, 0)
	assert.True(t, v.Exceeded)
	assert.Equal(t, budget.ReasonMultipleLimits, v.Reason)
	assert.Len(t, v.Alerts, 2)
}

func TestEvaluateHeartbeatTimeoutDistinctFromInterval(t *testing.T) {
	now := time.Now()
	last := now.Add(-time.Minute)
	rec := model.AgentRecord{
		Status:        model.AgentRunning,
		LastHeartbeat: &last,
		Budget: model.Budget{
			HeartbeatIntervalSeconds: 10,
			HeartbeatTimeoutSeconds:  30,
		},
	}
	v := budget.Evaluate(rec, now, 0)
	assert.True(t, v.Exceeded)
	assert.Equal(t, budget.ReasonHeartbeatTimeout, v.Reason)
}

func TestEvaluateSoftHeartbeatIntervalOnly(t *testing.T) {
	now := time.Now()
	last := now.Add(-15 * time.Second)
	rec := model.AgentRecord{
		Status:        model.AgentRunning,
		LastHeartbeat: &last,
		Budget: model.Budget{
			HeartbeatIntervalSeconds: 10,
			HeartbeatTimeoutSeconds:  30,
		},
	}
	v := budget.Evaluate(rec, now, 0)
	assert.False(t, v.Exceeded)
	if assert.Len(t, v.Alerts, 1) {
		assert.Equal(t, budget.SeveritySoft, v.Alerts[0].Severity)
	}
}
