package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpec(t *testing.T) {
	cfg := Default()
	require.Equal(t, 10, cfg.Snapshot.TriggerAgentCount)
	require.Equal(t, 20000, cfg.Snapshot.TriggerTokenCount)
	require.Equal(t, 100, cfg.Analytics.BatchSize)
	require.Equal(t, 0.9, cfg.TokenBudget.WarningThreshold)
	require.Equal(t, 200000, cfg.TokenBudget.Default)
	require.Equal(t, 0.7, cfg.Approvals.Threshold)
	require.False(t, cfg.Approvals.Enabled)
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestApplyEnvOverlays(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"SUBAGENT_DATA_DIR":             "/tmp/data",
		"SUBAGENT_SNAPSHOT_AGENT_COUNT": "5",
		"SUBAGENT_APPROVALS_ENABLED":    "true",
		"SUBAGENT_APPROVAL_THRESHOLD":   "0.5",
	}
	cfg.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })

	require.Equal(t, "/tmp/data", cfg.DataDir)
	require.Equal(t, 5, cfg.Snapshot.TriggerAgentCount)
	require.True(t, cfg.Approvals.Enabled)
	require.Equal(t, 0.5, cfg.Approvals.Threshold)
}
