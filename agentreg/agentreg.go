// Package agentreg implements the agent registry and lifecycle state
// machine from spec §4.I: persistent agent records, enforced state
// transitions, heartbeat tracking, and a process-handle map backing
// pause/resume/terminate for subprocess-backed agents.
package agentreg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/ident"
	"github.com/subagentctl/subagentctl/model"
	"github.com/subagentctl/subagentctl/telemetry"
)

// Store persists AgentRecords. Implementations must defensively copy on
// read and write so callers cannot mutate stored state through a returned
// pointer, following run/inmem's discipline.
type Store interface {
	Upsert(ctx context.Context, rec model.AgentRecord) error
	Load(ctx context.Context, agentID string) (model.AgentRecord, bool, error)
	List(ctx context.Context) ([]model.AgentRecord, error)
}

// Filter narrows List results. Zero value matches everything.
type Filter struct {
	SessionID string
	TaskID    string
	Status    model.AgentStatus
}

// legalTransitions encodes the state machine in spec §4.I:
//
//	pending -> running -> {paused <-> running} -> completed|failed|terminated
var legalTransitions = map[model.AgentStatus]map[model.AgentStatus]bool{
	model.AgentPending: {
		model.AgentRunning:    true,
		model.AgentFailed:     true,
		model.AgentTerminated: true,
	},
	model.AgentRunning: {
		model.AgentPaused:     true,
		model.AgentCompleted:  true,
		model.AgentFailed:     true,
		model.AgentTerminated: true,
	},
	model.AgentPaused: {
		model.AgentRunning:    true,
		model.AgentCompleted:  true,
		model.AgentFailed:     true,
		model.AgentTerminated: true,
	},
}

// ProcessHandle abstracts the subprocess/goroutine backing a running
// agent so the lifecycle can signal it cooperatively (spec §4.I, §5).
type ProcessHandle interface {
	// Pause requests the backing process/goroutine suspend. For OS
	// processes this is typically SIGSTOP; for goroutine-backed agents
	// this flips the cooperative pause flag the agent polls.
	Pause() error
	// Resume reverses Pause.
	Resume() error
	// Terminate requests the backing process/goroutine stop permanently
	// (SIGTERM for OS processes; a stop flag for goroutines).
	Terminate() error
}

// Registry is the control surface for agent lifecycle (spec §4.I). It owns
// no goroutines of its own; every mutation stamps UpdatedAt and — for
// terminal transitions — publishes agent.completed/agent.failed, leaving
// the bus to fan those out to loggers, analytics, and cost tracking.
type Registry struct {
	store Store
	b     bus.Bus
	log   telemetry.Logger

	mu       sync.Mutex
	handles  map[string]ProcessHandle
	upgrades map[string]bool // dedup for model.tier_upgrade, keyed by agent_id (owned by router, exposed here for convenience)
}

// Option configures a Registry at construction.
type Option func(*Registry)

// WithLogger injects a telemetry.Logger.
func WithLogger(l telemetry.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// New constructs a Registry backed by store, publishing lifecycle events to
// b (may be nil to disable event emission, e.g. in pure unit tests).
func New(store Store, b bus.Bus, opts ...Option) *Registry {
	r := &Registry{
		store:   store,
		b:       b,
		log:     telemetry.NoopLogger{},
		handles: make(map[string]ProcessHandle),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create inserts a new pending AgentRecord and returns it.
func (r *Registry) Create(ctx context.Context, agentType, modelName string, budget model.Budget, sessionID, taskID string, metadata map[string]any) (model.AgentRecord, error) {
	now := time.Now().UTC()
	rec := model.AgentRecord{
		AgentID:   ident.New("agent"),
		AgentType: agentType,
		Model:     modelName,
		Status:    model.AgentPending,
		SessionID: sessionID,
		TaskID:    taskID,
		CreatedAt: now,
		UpdatedAt: now,
		Budget:    budget,
		Metadata:  metadata,
	}
	if err := r.store.Upsert(ctx, rec); err != nil {
		return model.AgentRecord{}, fmt.Errorf("agentreg: create: %w", err)
	}
	return rec, nil
}

// Get loads one record by ID.
func (r *Registry) Get(ctx context.Context, agentID string) (model.AgentRecord, bool, error) {
	return r.store.Load(ctx, agentID)
}

// List loads every record matching filter.
func (r *Registry) List(ctx context.Context, filter Filter) ([]model.AgentRecord, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rec := range all {
		if filter.SessionID != "" && rec.SessionID != filter.SessionID {
			continue
		}
		if filter.TaskID != "" && rec.TaskID != filter.TaskID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Update applies fn to the current record, persists the result, and stamps
// UpdatedAt (spec §3: "Any update_agent stamps updated_at"). fn must not
// change Status; use Transition for lifecycle moves.
func (r *Registry) Update(ctx context.Context, agentID string, fn func(*model.AgentRecord)) (model.AgentRecord, error) {
	rec, ok, err := r.store.Load(ctx, agentID)
	if err != nil {
		return model.AgentRecord{}, err
	}
	if !ok {
		return model.AgentRecord{}, fmt.Errorf("agentreg: %s: %w", agentID, errNotFound)
	}
	prevStatus := rec.Status
	fn(&rec)
	rec.Status = prevStatus
	rec.UpdatedAt = time.Now().UTC()
	if err := r.store.Upsert(ctx, rec); err != nil {
		return model.AgentRecord{}, err
	}
	return rec, nil
}

// RecordHeartbeat stamps LastHeartbeat and optionally merges metric deltas.
func (r *Registry) RecordHeartbeat(ctx context.Context, agentID string, metrics model.Metrics) (model.AgentRecord, error) {
	now := time.Now().UTC()
	return r.Update(ctx, agentID, func(rec *model.AgentRecord) {
		rec.LastHeartbeat = &now
		if metrics.InputTokens > 0 {
			rec.Metrics.InputTokens = metrics.InputTokens
		}
		if metrics.OutputTokens > 0 {
			rec.Metrics.OutputTokens = metrics.OutputTokens
		}
		if metrics.TokensUsed > 0 {
			rec.Metrics.TokensUsed = metrics.TokensUsed
		}
		if metrics.ElapsedSeconds > 0 {
			rec.Metrics.ElapsedSeconds = metrics.ElapsedSeconds
		}
		if metrics.CostUSD > 0 {
			rec.Metrics.CostUSD = metrics.CostUSD
		}
	})
}

// Transition moves agentID to status, enforcing the legal-transition table.
// A transition attempted from a terminal state is a no-op (spec invariant
// 3): the stored record is returned unchanged and no event is published.
// reason/errMsg populate agent.failed payloads when status is a failure
// terminal state.
func (r *Registry) Transition(ctx context.Context, agentID string, status model.AgentStatus, reason, errMsg string) (model.AgentRecord, error) {
	rec, ok, err := r.store.Load(ctx, agentID)
	if err != nil {
		return model.AgentRecord{}, err
	}
	if !ok {
		return model.AgentRecord{}, fmt.Errorf("agentreg: %s: %w", agentID, errNotFound)
	}

	if rec.Status.IsTerminal() {
		return rec, nil // no-op, spec invariant 3
	}
	if !legalTransitions[rec.Status][status] {
		return model.AgentRecord{}, fmt.Errorf("agentreg: illegal transition %s -> %s", rec.Status, status)
	}

	now := time.Now().UTC()
	rec.Status = status
	rec.UpdatedAt = now
	if status == model.AgentRunning && rec.StartedAt == nil {
		rec.StartedAt = &now
	}
	if status.IsTerminal() {
		rec.CompletedAt = &now
	}

	if err := r.store.Upsert(ctx, rec); err != nil {
		return model.AgentRecord{}, err
	}

	r.publishTransition(ctx, rec, status, reason, errMsg)
	return rec, nil
}

func (r *Registry) publishTransition(ctx context.Context, rec model.AgentRecord, status model.AgentStatus, reason, errMsg string) {
	if r.b == nil {
		return
	}
	switch status {
	case model.AgentCompleted:
		r.b.Publish(ctx, bus.NewEvent(bus.EventAgentCompleted, rec.SessionID, map[string]any{
			"agent_id":         rec.AgentID,
			"duration_seconds": rec.Metrics.ElapsedSeconds,
			"tokens_used":      rec.Metrics.TokensUsed,
			"model":            rec.Model,
			"input_tokens":     rec.Metrics.InputTokens,
			"output_tokens":    rec.Metrics.OutputTokens,
		}))
	case model.AgentFailed, model.AgentTerminated:
		r.b.Publish(ctx, bus.NewEvent(bus.EventAgentFailed, rec.SessionID, map[string]any{
			"agent_id": rec.AgentID,
			"error":    errMsg,
			"reason":   reason,
		}))
	}
}

// BindProcess associates a ProcessHandle with agentID so Pause/Resume/
// Terminate can signal it.
func (r *Registry) BindProcess(agentID string, h ProcessHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[agentID] = h
}

// Pause transitions agentID to paused and, if a ProcessHandle is bound,
// signals it to suspend cooperatively.
func (r *Registry) Pause(ctx context.Context, agentID string) (model.AgentRecord, error) {
	rec, err := r.Transition(ctx, agentID, model.AgentPaused, "", "")
	if err != nil {
		return rec, err
	}
	if h := r.handle(agentID); h != nil {
		if err := h.Pause(); err != nil {
			r.log.Warn(ctx, "agentreg: process pause failed", "agent_id", agentID, "error", err.Error())
		}
	}
	return rec, nil
}

// Resume transitions agentID back to running and reverses any bound
// ProcessHandle's pause.
func (r *Registry) Resume(ctx context.Context, agentID string) (model.AgentRecord, error) {
	rec, err := r.Transition(ctx, agentID, model.AgentRunning, "", "")
	if err != nil {
		return rec, err
	}
	if h := r.handle(agentID); h != nil {
		if err := h.Resume(); err != nil {
			r.log.Warn(ctx, "agentreg: process resume failed", "agent_id", agentID, "error", err.Error())
		}
	}
	return rec, nil
}

// Terminate transitions agentID to terminated with reason and signals any
// bound ProcessHandle to stop.
func (r *Registry) Terminate(ctx context.Context, agentID, reason string) (model.AgentRecord, error) {
	rec, err := r.Transition(ctx, agentID, model.AgentTerminated, reason, "")
	if err != nil {
		return rec, err
	}
	if h := r.handle(agentID); h != nil {
		if err := h.Terminate(); err != nil {
			r.log.Warn(ctx, "agentreg: process terminate failed", "agent_id", agentID, "error", err.Error())
		}
	}
	return rec, nil
}

func (r *Registry) handle(agentID string) ProcessHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[agentID]
}

var errNotFound = fmt.Errorf("agent record not found")
