// Package config defines the typed configuration surface recognized by the
// control plane (spec §6). Loading a project-specific config file or CLI
// flags into this struct is an adapter's job; this package only owns the
// struct shape, its defaults, and the SUBAGENT_* environment overlay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type (
	// Config is the full set of recognized runtime options (spec §6).
	Config struct {
		DataDir       string        `yaml:"data_dir"`
		ActivityLog   ActivityLog   `yaml:"activity_log"`
		Snapshot      Snapshot      `yaml:"snapshot"`
		Backup        Backup        `yaml:"backup"`
		Analytics     Analytics     `yaml:"analytics"`
		Performance   Performance   `yaml:"performance"`
		TokenBudget   TokenBudget   `yaml:"token_budget"`
		SessionID     SessionID     `yaml:"session_id"`
		StrictMode    bool          `yaml:"strict_mode"`
		Approvals     Approvals     `yaml:"approvals"`
	}

	// ActivityLog configures the JSONL log writer subscriber (spec §4.C).
	ActivityLog struct {
		Enabled        bool `yaml:"enabled"`
		Compression    bool `yaml:"compression"`
		RetentionCount int  `yaml:"retention_count"`
		BufferSize     int  `yaml:"buffer_size"`
	}

	// Snapshot configures the snapshot trigger and manager (spec §4.E, §4.O).
	Snapshot struct {
		Enabled           bool `yaml:"enabled"`
		TriggerAgentCount int  `yaml:"trigger_agent_count"`
		TriggerTokenCount int  `yaml:"trigger_token_count"`
		Compression       bool `yaml:"compression"`
		RetentionDays     int  `yaml:"retention_days"`
	}

	// Backup configures handoff/backup behavior referenced by the snapshot
	// manager and session lifecycle.
	Backup struct {
		Enabled      bool `yaml:"enabled"`
		OnHandoff    bool `yaml:"on_handoff"`
		OnTokenLimit bool `yaml:"on_token_limit"`
		Async        bool `yaml:"async"`
	}

	// Analytics configures the SQL ingester subscriber (spec §4.D).
	Analytics struct {
		Enabled   bool `yaml:"enabled"`
		BatchSize int  `yaml:"batch_size"`
	}

	// Performance holds the latency budgets spec §6 names, in milliseconds
	// except BackupMinute.
	Performance struct {
		EventMs      float64 `yaml:"event_ms"`
		SnapshotMs   float64 `yaml:"snapshot_ms"`
		QueryMs      float64 `yaml:"query_ms"`
		BackupMinute float64 `yaml:"backup_minutes"`
	}

	// TokenBudget configures the default per-agent token budget and the
	// warning threshold used by the cost tracker and session token-warning
	// event.
	TokenBudget struct {
		WarningThreshold float64 `yaml:"warning_threshold"`
		Default          int     `yaml:"default"`
	}

	// SessionID configures the session ID format string (strftime-like,
	// see package ident).
	SessionID struct {
		Format string `yaml:"format"`
	}

	// Approvals configures the permission manager's approval gate (spec §4.K).
	Approvals struct {
		Enabled   bool    `yaml:"enabled"`
		Threshold float64 `yaml:"threshold"`
	}
)

// Default returns the configuration with every spec §6 default applied.
func Default() *Config {
	return &Config{
		DataDir: "./.subagent/",
		ActivityLog: ActivityLog{
			Enabled:        true,
			Compression:    true,
			RetentionCount: 2,
			BufferSize:     100,
		},
		Snapshot: Snapshot{
			Enabled:           true,
			TriggerAgentCount: 10,
			TriggerTokenCount: 20000,
			Compression:       true,
			RetentionDays:     7,
		},
		Backup: Backup{
			Enabled:      false,
			OnHandoff:    true,
			OnTokenLimit: true,
			Async:        true,
		},
		Analytics: Analytics{
			Enabled:   true,
			BatchSize: 100,
		},
		Performance: Performance{
			EventMs:      1.0,
			SnapshotMs:   100,
			QueryMs:      10,
			BackupMinute: 2,
		},
		TokenBudget: TokenBudget{
			WarningThreshold: 0.9,
			Default:          200000,
		},
		SessionID: SessionID{Format: "session_%Y%m%d_%H%M%S"},
		Approvals: Approvals{Enabled: false, Threshold: 0.7},
	}
}

// Load reads path as YAML and overlays it onto Default(). A missing file is
// not an error; Default() is returned unchanged so callers can treat config
// files as optional.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays the SUBAGENT_* environment variables from spec §6 onto
// cfg, mutating it in place.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup("SUBAGENT_DATA_DIR"); ok {
		c.DataDir = v
	}
	if v, ok := lookup("SUBAGENT_TRACKING_ROOT"); ok && v != "" {
		c.DataDir = v
	}
	if v, ok := lookup("SUBAGENT_SNAPSHOT_AGENT_COUNT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Snapshot.TriggerAgentCount = n
		}
	}
	if v, ok := lookup("SUBAGENT_SNAPSHOT_TOKEN_COUNT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Snapshot.TriggerTokenCount = n
		}
	}
	if v, ok := lookup("SUBAGENT_BACKUP_ENABLED"); ok {
		c.Backup.Enabled = parseBool(v)
	}
	if v, ok := lookup("SUBAGENT_ANALYTICS_ENABLED"); ok {
		c.Analytics.Enabled = parseBool(v)
	}
	if v, ok := lookup("SUBAGENT_LOG_LATENCY_MS"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Performance.EventMs = f
		}
	}
	if v, ok := lookup("SUBAGENT_TOKEN_BUDGET"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.TokenBudget.Default = n
		}
	}
	if v, ok := lookup("SUBAGENT_STRICT_MODE"); ok {
		c.StrictMode = parseBool(v)
	}
	if v, ok := lookup("SUBAGENT_APPROVALS_ENABLED"); ok {
		c.Approvals.Enabled = parseBool(v)
	}
	if v, ok := lookup("SUBAGENT_APPROVAL_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Approvals.Threshold = f
		}
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
