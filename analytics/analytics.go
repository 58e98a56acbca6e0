// Package analytics implements the Analytics Ingester Subscriber (spec
// §4.D): a bus.Handler that batches agent/tool/session events into typed
// buffers and flushes each batch as a single transaction per table. cost.*
// events are not recorded; an agent row's cost comes from the cost_usd
// field of the agent event itself.
// Store is the storage-agnostic interface; package sqlstore provides the
// sqlx-backed implementation over a caller-supplied *sql.DB.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/telemetry"
)

// AgentRow is one agent lifecycle fact ready for batch insert.
type AgentRow struct {
	AgentID    string
	AgentType  string
	Model      string
	SessionID  string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	TokensUsed int64
	CostUSD    float64
}

// ToolUsageRow is one tool invocation fact.
type ToolUsageRow struct {
	AgentID   string
	SessionID string
	Tool      string
	Success   bool
	At        time.Time
}

// ErrorPatternRow is one tool-error fact; tool.error events produce both a
// ToolUsageRow (success=false) and an ErrorPatternRow (spec §4.D).
type ErrorPatternRow struct {
	AgentID   string
	SessionID string
	Tool      string
	ErrorKind string
	Message   string
	At        time.Time
}

// SessionRow is upserted on session.started and updated on session.ended
// ("INSERT OR IGNORE on start and updated on end", spec §4.D).
type SessionRow struct {
	SessionID string
	StartedAt time.Time
	EndedAt   time.Time
	Status    string
}

// Store is the storage-agnostic batch-insert surface the Ingester writes
// through, plus the read-only aggregate query surface (spec §4.D: "Query
// surface is read-only aggregates").
type Store interface {
	InsertAgents(ctx context.Context, rows []AgentRow) error
	InsertToolUsage(ctx context.Context, rows []ToolUsageRow) error
	InsertErrorPatterns(ctx context.Context, rows []ErrorPatternRow) error
	UpsertSessionStart(ctx context.Context, rows []SessionRow) error
	UpdateSessionEnd(ctx context.Context, sessionID string, endedAt time.Time, status string) error

	PerformanceByAgent(ctx context.Context) ([]AgentPerformance, error)
	ToolEffectiveness(ctx context.Context) ([]ToolEffectivenessRow, error)
	ErrorPatterns(ctx context.Context) ([]ErrorPatternSummary, error)
	SessionSummary(ctx context.Context, sessionID string) (SessionSummary, error)
}

// AgentPerformance is one row of the performance-by-agent aggregate.
type AgentPerformance struct {
	AgentType    string
	RunCount     int
	AvgTokens    float64
	AvgCostUSD   float64
	SuccessRatio float64
}

// ToolEffectivenessRow is one row of the tool-effectiveness aggregate.
type ToolEffectivenessRow struct {
	Tool         string
	CallCount    int
	SuccessCount int
}

// ErrorPatternSummary is one row of the grouped error-patterns aggregate.
type ErrorPatternSummary struct {
	Tool      string
	ErrorKind string
	Count     int
}

// SessionSummary aggregates one session's totals for the control plane's
// `handoff`/`status` surfaces.
type SessionSummary struct {
	SessionID  string
	AgentCount int
	TokensUsed int64
	CostUSD    float64
	ToolCalls  int
	ErrorCount int
}

type buffers struct {
	mu       sync.Mutex
	agents   []AgentRow
	tools    []ToolUsageRow
	errors   []ErrorPatternRow
	sessions []SessionRow
}

// Ingester records agent/tool/session events (other event types, cost.*
// included, are ignored) and flushes each typed buffer once it reaches
// BatchSize, or on Flush/shutdown.
type Ingester struct {
	store     Store
	batchSize int
	log       telemetry.Logger

	buf      buffers
	errCount int64
	errMu    sync.Mutex
}

// Option configures an Ingester at construction.
type Option func(*Ingester)

// WithLogger injects a telemetry.Logger for commit-failure reporting.
func WithLogger(l telemetry.Logger) Option {
	return func(i *Ingester) { i.log = l }
}

// New constructs an Ingester. batchSize defaults to 100 (spec §4.D).
func New(store Store, batchSize int, opts ...Option) *Ingester {
	if batchSize <= 0 {
		batchSize = 100
	}
	i := &Ingester{store: store, batchSize: batchSize, log: telemetry.NoopLogger{}}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// HandleEvent implements bus.Handler, routing each recognized event type
// into its typed buffer and flushing that buffer if it has reached
// batchSize.
func (i *Ingester) HandleEvent(ctx context.Context, e bus.Event) error {
	switch e.Type() {
	case bus.EventAgentInvoked, bus.EventAgentCompleted, bus.EventAgentFailed, bus.EventAgentTimeout, bus.EventAgentBlocked:
		return i.onAgentEvent(ctx, e)
	case bus.EventToolUsed:
		return i.onToolUsed(ctx, e)
	case bus.EventToolError:
		return i.onToolError(ctx, e)
	case bus.EventSessionStarted:
		return i.onSessionStarted(ctx, e)
	case bus.EventSessionEnded:
		return i.onSessionEnded(ctx, e)
	default:
		return nil
	}
}

func (i *Ingester) onAgentEvent(ctx context.Context, e bus.Event) error {
	row := AgentRow{
		AgentID:   stringField(e, "agent_id"),
		AgentType: stringField(e, "agent_type"),
		Model:     stringField(e, "model"),
		SessionID: e.SessionID(),
		Status:    statusForEventType(e.Type()),
	}
	if e.Type() != bus.EventAgentInvoked {
		row.FinishedAt = e.Timestamp()
	} else {
		row.StartedAt = e.Timestamp()
	}
	row.TokensUsed = int64Field(e, "tokens_used")
	row.CostUSD = floatField(e, "cost_usd")

	i.buf.mu.Lock()
	i.buf.agents = append(i.buf.agents, row)
	full := len(i.buf.agents) >= i.batchSize
	i.buf.mu.Unlock()
	if full {
		return i.flushAgents(ctx)
	}
	return nil
}

func (i *Ingester) onToolUsed(ctx context.Context, e bus.Event) error {
	row := ToolUsageRow{
		AgentID:   stringField(e, "agent_id"),
		SessionID: e.SessionID(),
		Tool:      stringField(e, "tool"),
		Success:   true,
		At:        e.Timestamp(),
	}
	i.buf.mu.Lock()
	i.buf.tools = append(i.buf.tools, row)
	full := len(i.buf.tools) >= i.batchSize
	i.buf.mu.Unlock()
	if full {
		return i.flushTools(ctx)
	}
	return nil
}

func (i *Ingester) onToolError(ctx context.Context, e bus.Event) error {
	usage := ToolUsageRow{
		AgentID:   stringField(e, "agent_id"),
		SessionID: e.SessionID(),
		Tool:      stringField(e, "tool"),
		Success:   false,
		At:        e.Timestamp(),
	}
	errRow := ErrorPatternRow{
		AgentID:   stringField(e, "agent_id"),
		SessionID: e.SessionID(),
		Tool:      stringField(e, "tool"),
		ErrorKind: stringField(e, "error_kind"),
		Message:   stringField(e, "error"),
		At:        e.Timestamp(),
	}

	i.buf.mu.Lock()
	i.buf.tools = append(i.buf.tools, usage)
	i.buf.errors = append(i.buf.errors, errRow)
	toolsFull := len(i.buf.tools) >= i.batchSize
	errFull := len(i.buf.errors) >= i.batchSize
	i.buf.mu.Unlock()

	if toolsFull {
		if err := i.flushTools(ctx); err != nil {
			return err
		}
	}
	if errFull {
		return i.flushErrors(ctx)
	}
	return nil
}

func (i *Ingester) onSessionStarted(ctx context.Context, e bus.Event) error {
	row := SessionRow{SessionID: e.SessionID(), StartedAt: e.Timestamp(), Status: "active"}
	i.buf.mu.Lock()
	i.buf.sessions = append(i.buf.sessions, row)
	full := len(i.buf.sessions) >= i.batchSize
	i.buf.mu.Unlock()
	if full {
		return i.flushSessions(ctx)
	}
	return nil
}

func (i *Ingester) onSessionEnded(ctx context.Context, e bus.Event) error {
	status := stringField(e, "status")
	if status == "" {
		status = "completed"
	}
	if err := i.store.UpdateSessionEnd(ctx, e.SessionID(), e.Timestamp(), status); err != nil {
		i.noteError(ctx, "session_end", err)
		return err
	}
	return nil
}

// Flush flushes every typed buffer unconditionally (shutdown path, spec
// §4.D).
func (i *Ingester) Flush(ctx context.Context) error {
	var first error
	for _, fn := range []func(context.Context) error{i.flushAgents, i.flushTools, i.flushErrors, i.flushSessions} {
		if err := fn(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (i *Ingester) flushAgents(ctx context.Context) error {
	i.buf.mu.Lock()
	batch := i.buf.agents
	i.buf.agents = nil
	i.buf.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	if err := i.store.InsertAgents(ctx, batch); err != nil {
		i.noteError(ctx, "agents", err)
		return err
	}
	return nil
}

func (i *Ingester) flushTools(ctx context.Context) error {
	i.buf.mu.Lock()
	batch := i.buf.tools
	i.buf.tools = nil
	i.buf.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	if err := i.store.InsertToolUsage(ctx, batch); err != nil {
		i.noteError(ctx, "tool_usage", err)
		return err
	}
	return nil
}

func (i *Ingester) flushErrors(ctx context.Context) error {
	i.buf.mu.Lock()
	batch := i.buf.errors
	i.buf.errors = nil
	i.buf.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	if err := i.store.InsertErrorPatterns(ctx, batch); err != nil {
		i.noteError(ctx, "error_patterns", err)
		return err
	}
	return nil
}

func (i *Ingester) flushSessions(ctx context.Context) error {
	i.buf.mu.Lock()
	batch := i.buf.sessions
	i.buf.sessions = nil
	i.buf.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	if err := i.store.UpsertSessionStart(ctx, batch); err != nil {
		i.noteError(ctx, "sessions", err)
		return err
	}
	return nil
}

// noteError increments error_count on commit failure; the batch is
// already dropped by the caller (logs remain source of truth, spec §4.D).
func (i *Ingester) noteError(ctx context.Context, table string, err error) {
	i.errMu.Lock()
	i.errCount++
	i.errMu.Unlock()
	i.log.Warn(ctx, "analytics: batch commit failed, dropping batch", "table", table, "error", err.Error())
}

// ErrorCount returns the number of dropped batches.
func (i *Ingester) ErrorCount() int64 {
	i.errMu.Lock()
	defer i.errMu.Unlock()
	return i.errCount
}

func stringField(e bus.Event, key string) string {
	v, ok := e.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func int64Field(e bus.Event, key string) int64 {
	v, ok := e.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func floatField(e bus.Event, key string) float64 {
	v, ok := e.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func statusForEventType(t bus.EventType) string {
	switch t {
	case bus.EventAgentInvoked:
		return "running"
	case bus.EventAgentCompleted:
		return "completed"
	case bus.EventAgentFailed:
		return "failed"
	case bus.EventAgentTimeout:
		return "timeout"
	case bus.EventAgentBlocked:
		return "blocked"
	default:
		return string(t)
	}
}
