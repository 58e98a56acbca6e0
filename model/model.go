// Package model defines the plain data-model structs shared across the
// control plane (spec §3): Session, AgentRecord, TaskRecord, ApprovalRecord,
// PermissionProfile, and Snapshot. The owning packages (session, agentreg,
// permission, snapshot, ...) use these types directly rather than
// re-exporting them; this package holds the shape so multiple subsystems can agree
// on it without import cycles, following the teacher's convention of small,
// heavily-commented exported structs grouped in a single type block per
// file (see runtime/agent/run/run.go, runtime/agent/session/session.go).
package model

import "time"

type (
	// SessionStatus is the lifecycle state of a Session.
	SessionStatus string

	// Session is a bounded time slice of host activity; one session, one
	// log file (spec §3).
	Session struct {
		SessionID string         `json:"session_id"`
		StartedAt time.Time      `json:"started_at"`
		EndedAt   *time.Time     `json:"ended_at,omitempty"`
		Status    SessionStatus  `json:"status"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}

	// AgentStatus is the lifecycle state of an AgentRecord (spec §4.I).
	AgentStatus string

	// Budget holds the optional per-agent limits the budget enforcer
	// evaluates (spec §4.J).
	Budget struct {
		TokenLimit               int     `json:"token_limit,omitempty"`
		TimeLimitSeconds         float64 `json:"time_limit_seconds,omitempty"`
		CostLimitUSD             float64 `json:"cost_limit_usd,omitempty"`
		HeartbeatIntervalSeconds float64 `json:"heartbeat_interval_seconds,omitempty"`
		HeartbeatTimeoutSeconds  float64 `json:"heartbeat_timeout_seconds,omitempty"`
		SLATimeoutSeconds        float64 `json:"sla_timeout_seconds,omitempty"`
	}

	// Metrics accumulates the observed resource consumption of an agent.
	Metrics struct {
		InputTokens        int      `json:"input_tokens,omitempty"`
		OutputTokens       int      `json:"output_tokens,omitempty"`
		TokensUsed         int      `json:"tokens_used,omitempty"`
		ElapsedSeconds     float64  `json:"elapsed_seconds,omitempty"`
		HeartbeatAgeSecond float64  `json:"heartbeat_age_seconds,omitempty"`
		CostUSD            float64  `json:"cost_usd,omitempty"`
		ExitCode           *int     `json:"exit_code,omitempty"`
	}

	// AgentRecord is the durable record of one agent's lifecycle (spec §3).
	// Once Status enters a terminal state, only Metadata/Metrics may
	// mutate further (agentreg enforces this invariant).
	AgentRecord struct {
		AgentID       string         `json:"agent_id"`
		AgentType     string         `json:"agent_type"`
		Model         string         `json:"model"`
		Status        AgentStatus    `json:"status"`
		SessionID     string         `json:"session_id,omitempty"`
		TaskID        string         `json:"task_id,omitempty"`
		CreatedAt     time.Time      `json:"created_at"`
		UpdatedAt     time.Time      `json:"updated_at"`
		StartedAt     *time.Time     `json:"started_at,omitempty"`
		CompletedAt   *time.Time     `json:"completed_at,omitempty"`
		LastHeartbeat *time.Time     `json:"last_heartbeat,omitempty"`
		Budget        Budget         `json:"budget,omitempty"`
		Metrics       Metrics        `json:"metrics,omitempty"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}

	// TaskStatus is the lifecycle state of a TaskRecord.
	TaskStatus string

	// TaskRecord is a unit of requested work with acceptance criteria
	// (spec §3).
	TaskRecord struct {
		ID                 string         `json:"id"`
		Title              string         `json:"title,omitempty"`
		Description        string         `json:"description"`
		Priority           int            `json:"priority"`
		AcceptanceCriteria []string       `json:"acceptance_criteria,omitempty"`
		Context            []string       `json:"context,omitempty"`
		Status             TaskStatus     `json:"status"`
		CreatedAt          time.Time      `json:"created_at"`
		CompletedAt        *time.Time     `json:"completed_at,omitempty"`
		Metadata           map[string]any `json:"metadata,omitempty"`
	}

	// ApprovalStatus is the lifecycle state of an ApprovalRecord.
	ApprovalStatus string

	// ApprovalRecord is a persisted record that a risky tool call was
	// blocked pending explicit grant (spec §3, §4.K).
	ApprovalRecord struct {
		ApprovalID       string         `json:"approval_id"`
		Status           ApprovalStatus `json:"status"`
		Tool             string         `json:"tool"`
		RiskScore        float64        `json:"risk_score"`
		Reasons          []string       `json:"reasons,omitempty"`
		Action           string         `json:"action"`
		CreatedAt        time.Time      `json:"created_at"`
		UpdatedAt        time.Time      `json:"updated_at"`
		Decision         string         `json:"decision,omitempty"`
		FilePath         string         `json:"file_path,omitempty"`
		Agent            string         `json:"agent,omitempty"`
		Profile          string         `json:"profile,omitempty"`
		RequiresNetwork  bool           `json:"requires_network,omitempty"`
		RequiresBash     bool           `json:"requires_bash,omitempty"`
		ModifiesTests    bool           `json:"modifies_tests,omitempty"`
		Summary          string         `json:"summary,omitempty"`
	}

	// PermissionProfile is a named set of permissions attached to an agent
	// (spec §3, §4.K). A profile named "default" is always effective.
	PermissionProfile struct {
		Name               string   `json:"name"`
		Tools              []string `json:"tools,omitempty"`
		PathsAllowed       []string `json:"paths_allowed,omitempty"`
		PathsForbidden     []string `json:"paths_forbidden,omitempty"`
		CanSpawnSubagents  bool     `json:"can_spawn_subagents"`
		CanModifyTests     bool     `json:"can_modify_tests"`
		CanRunBash         bool     `json:"can_run_bash"`
		CanAccessNetwork   bool     `json:"can_access_network"`
	}

	// Snapshot is an atomic dump of session state at a point in time
	// (spec §3, §4.O).
	Snapshot struct {
		SnapshotID     string         `json:"snapshot_id"`
		SessionID      string         `json:"session_id"`
		Trigger        string         `json:"trigger"`
		CreatedAt      time.Time      `json:"created_at"`
		AgentCount     int            `json:"agent_count"`
		TokenCount     int            `json:"token_count"`
		FilesInContext []string       `json:"files_in_context,omitempty"`
		GitState       string         `json:"git_state,omitempty"`
		AgentContext   map[string]any `json:"agent_context,omitempty"`
	}
)

// Agent lifecycle states (spec §3, §4.I).
const (
	AgentPending    AgentStatus = "pending"
	AgentRunning    AgentStatus = "running"
	AgentPaused     AgentStatus = "paused"
	AgentCompleted  AgentStatus = "completed"
	AgentFailed     AgentStatus = "failed"
	AgentTerminated AgentStatus = "terminated"
)

// Session lifecycle states (spec §3).
const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Approval lifecycle states (spec §3, §4.K).
const (
	ApprovalRequired ApprovalStatus = "required"
	ApprovalGranted  ApprovalStatus = "granted"
	ApprovalDenied   ApprovalStatus = "denied"
)

// IsTerminal reports whether s is a terminal agent status: once reached,
// only Metadata/Metrics may mutate further (spec §3 invariant).
func (s AgentStatus) IsTerminal() bool {
	switch s {
	case AgentCompleted, AgentFailed, AgentTerminated:
		return true
	default:
		return false
	}
}

// DefaultProfile returns the always-present "default" permission profile.
// It grants no tools explicitly (empty Tools means "all tools" per
// permission.Validate) and allows all paths, matching the open question
// decision in SPEC_FULL.md (paths_allowed=[] means allow-all).
func DefaultProfile() PermissionProfile {
	return PermissionProfile{
		Name:              "default",
		CanSpawnSubagents: false,
		CanModifyTests:    false,
		CanRunBash:        false,
		CanAccessNetwork:  false,
	}
}
