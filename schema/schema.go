// Package schema implements the declarative event-payload validator from
// spec §4.B. Each event_type in the closed registry (package bus) is
// associated with required/optional fields and their expected kinds;
// Validate reports violations without mutating the event. The registry is
// effectively immutable after construction, matching the spec's
// "immutable after startup" requirement.
package schema

import (
	"fmt"

	"github.com/subagentctl/subagentctl/bus"
)

// Kind names the accepted Go value shape for a payload field.
type Kind int

const (
	// KindString requires a string value.
	KindString Kind = iota
	// KindNumber requires any numeric Go type (int, int64, float64, ...).
	KindNumber
	// KindBool requires a bool value.
	KindBool
	// KindAny accepts any non-nil value.
	KindAny
)

// Field describes one schema field.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	// Enum, if non-empty, restricts a KindString field to these values.
	Enum []string
}

// Schema is the declarative shape for one event type.
type Schema struct {
	EventType bus.EventType
	Fields    []Field
}

// Violation describes a single schema mismatch.
type Violation struct {
	Field  string
	Reason string
}

func (v Violation) String() string { return fmt.Sprintf("%s: %s", v.Field, v.Reason) }

// Result is the outcome of Validate.
type Result struct {
	// Unvalidated is true when event_type has no registered schema; the
	// payload is accepted for forward-compatibility (spec §4.B) but
	// flagged so callers can surface it.
	Unvalidated bool
	Violations  []Violation
}

// OK reports whether the payload passed validation (no violations). An
// unvalidated (unknown) event type is always OK.
func (r Result) OK() bool { return len(r.Violations) == 0 }

// Registry holds the closed set of schemas, keyed by event type.
type Registry struct {
	schemas map[bus.EventType]Schema
}

// NewRegistry builds a registry pre-populated with Defaults() plus any
// additional schemas supplied by the caller (tests typically pass none).
func NewRegistry(extra ...Schema) *Registry {
	r := &Registry{schemas: make(map[bus.EventType]Schema)}
	for _, s := range Defaults() {
		r.schemas[s.EventType] = s
	}
	for _, s := range extra {
		r.schemas[s.EventType] = s
	}
	return r
}

// Register adds or replaces the schema for one event type. Intended for use
// only during startup wiring; callers should treat the registry as
// immutable once the runtime begins publishing events.
func (r *Registry) Register(s Schema) { r.schemas[s.EventType] = s }

// Validate checks payload against the schema registered for eventType.
func (r *Registry) Validate(eventType bus.EventType, payload map[string]any) Result {
	s, ok := r.schemas[eventType]
	if !ok {
		return Result{Unvalidated: true}
	}
	var violations []Violation
	for _, f := range s.Fields {
		v, present := payload[f.Name]
		if !present {
			if f.Required {
				violations = append(violations, Violation{Field: f.Name, Reason: "required field missing"})
			}
			continue
		}
		if v == nil {
			violations = append(violations, Violation{Field: f.Name, Reason: "must not be nil"})
			continue
		}
		if !kindMatches(f.Kind, v) {
			violations = append(violations, Violation{Field: f.Name, Reason: "wrong type"})
			continue
		}
		if len(f.Enum) > 0 {
			if s, ok := v.(string); ok && !contains(f.Enum, s) {
				violations = append(violations, Violation{Field: f.Name, Reason: fmt.Sprintf("must be one of %v", f.Enum)})
			}
		}
	}
	return Result{Violations: violations}
}

func kindMatches(k Kind, v any) bool {
	switch k {
	case KindAny:
		return true
	case KindString:
		_, ok := v.(string)
		return ok
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindNumber:
		switch v.(type) {
		case int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		default:
			return false
		}
	default:
		return false
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Defaults returns the built-in schemas for the closed event-type registry
// (spec §6). Fields reflect the payload keys used by the subscribers in
// this module (agentreg, permission, cost, trigger, router, workflow,
// snapshot) so Validate catches malformed wiring early in tests.
func Defaults() []Schema {
	return []Schema{
		{EventType: bus.EventAgentInvoked, Fields: []Field{
			{Name: "agent_id", Kind: KindString, Required: true},
			{Name: "agent_type", Kind: KindString},
			{Name: "invoked_by", Kind: KindString},
			{Name: "reason", Kind: KindString},
		}},
		{EventType: bus.EventAgentCompleted, Fields: []Field{
			{Name: "agent_id", Kind: KindString, Required: true},
			{Name: "duration_seconds", Kind: KindNumber},
			{Name: "tokens_used", Kind: KindNumber},
			{Name: "model", Kind: KindString},
			{Name: "input_tokens", Kind: KindNumber},
			{Name: "output_tokens", Kind: KindNumber},
		}},
		{EventType: bus.EventAgentFailed, Fields: []Field{
			{Name: "agent_id", Kind: KindString, Required: true},
			{Name: "error", Kind: KindString},
			{Name: "reason", Kind: KindString},
		}},
		{EventType: bus.EventAgentTimeout, Fields: []Field{
			{Name: "agent_id", Kind: KindString, Required: true},
			{Name: "reason", Kind: KindString},
		}},
		{EventType: bus.EventAgentBlocked, Fields: []Field{
			{Name: "agent_id", Kind: KindString, Required: true},
			{Name: "hook", Kind: KindString},
		}},
		{EventType: bus.EventToolUsed, Fields: []Field{
			{Name: "tool", Kind: KindString, Required: true},
			{Name: "success", Kind: KindBool, Required: true},
		}},
		{EventType: bus.EventToolError, Fields: []Field{
			{Name: "tool", Kind: KindString, Required: true},
			{Name: "error_type", Kind: KindString},
		}},
		{EventType: bus.EventSnapshotCreated, Fields: []Field{
			{Name: "snapshot_id", Kind: KindString, Required: true},
			{Name: "trigger", Kind: KindString},
		}},
		{EventType: bus.EventSessionStarted, Fields: []Field{
			{Name: "session_id", Kind: KindString, Required: true},
		}},
		{EventType: bus.EventSessionTokenWarning, Fields: []Field{
			{Name: "percent", Kind: KindNumber, Required: true},
		}},
		{EventType: bus.EventCostTracked, Fields: []Field{
			{Name: "agent_id", Kind: KindString, Required: true},
			{Name: "cost_usd", Kind: KindNumber, Required: true},
		}},
		{EventType: bus.EventCostBudgetWarning, Fields: []Field{
			{Name: "window", Kind: KindString, Required: true},
			{Name: "threshold", Kind: KindNumber, Required: true},
		}},
		{EventType: bus.EventWorkflowStarted, Fields: []Field{
			{Name: "workflow_id", Kind: KindString, Required: true},
		}},
		{EventType: bus.EventWorkflowCompleted, Fields: []Field{
			{Name: "workflow_id", Kind: KindString, Required: true},
		}},
		{EventType: bus.EventApprovalRequired, Fields: []Field{
			{Name: "approval_id", Kind: KindString, Required: true},
			{Name: "risk_score", Kind: KindNumber, Required: true},
		}},
		{EventType: bus.EventModelSelected, Fields: []Field{
			{Name: "tier", Kind: KindString, Required: true, Enum: []string{"weak", "base", "strong"}},
			{Name: "model", Kind: KindString, Required: true},
		}},
	}
}
