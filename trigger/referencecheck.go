package trigger

import (
	"context"
	"sort"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/telemetry"
)

// Requirement is one PRD requirement candidate for a reference check
// (spec §4.F: "selects up to K incomplete, highest-priority
// requirements").
type Requirement struct {
	ID       string
	Text     string
	Priority int
	Complete bool
}

// RequirementSource supplies the current requirement set; callers bind
// this to wherever the PRD document is parsed/tracked. A nil or empty
// result means no PRD document exists, in which case ReferenceCheckTrigger
// is a no-op (spec §4.F: "When a PRD document exists and a trigger
// fires...").
type RequirementSource func(ctx context.Context) ([]Requirement, error)

// ReferencePromptRenderer renders the reference-check prompt text from
// the selected requirements.
type ReferencePromptRenderer func(selected []Requirement) string

// ReferenceCheckTrigger fires a reference check every N agent invocations
// or M tokens, analogous to SnapshotTrigger (spec §4.F).
type ReferenceCheckTrigger struct {
	everyAgents int
	everyTokens int
	topK        int
	source      RequirementSource
	render      ReferencePromptRenderer
	b           bus.Bus
	log         telemetry.Logger
	counters
}

// NewReferenceCheckTrigger constructs a ReferenceCheckTrigger. topK
// defaults to 5 when zero.
func NewReferenceCheckTrigger(everyAgents, everyTokens, topK int, source RequirementSource, render ReferencePromptRenderer, b bus.Bus, log telemetry.Logger) *ReferenceCheckTrigger {
	if everyAgents <= 0 {
		everyAgents = 10
	}
	if topK <= 0 {
		topK = 5
	}
	if log == nil {
		log = telemetry.NoopLogger{}
	}
	return &ReferenceCheckTrigger{everyAgents: everyAgents, everyTokens: everyTokens, topK: topK, source: source, render: render, b: b, log: log}
}

// HandleEvent implements bus.Handler.
func (t *ReferenceCheckTrigger) HandleEvent(ctx context.Context, e bus.Event) error {
	switch e.Type() {
	case bus.EventAgentInvoked:
		_, sinceLast := t.onAgentInvoked()
		if sinceLast >= t.everyAgents {
			t.fire(ctx, e.SessionID())
		}
	case bus.EventToolUsed, bus.EventAgentCompleted:
		if n := intPayload(e, "tokens_used"); n > 0 && t.everyTokens > 0 {
			total := t.addTokens(n)
			if total >= t.everyTokens {
				t.addTokens(-total)
				t.fire(ctx, e.SessionID())
			}
		}
	}
	return nil
}

// Force bypasses the agent/token counters and runs a reference check
// immediately (spec §4.F: "Manual force() API bypasses counters").
func (t *ReferenceCheckTrigger) Force(ctx context.Context, sessionID string) error {
	return t.run(ctx, sessionID)
}

func (t *ReferenceCheckTrigger) fire(ctx context.Context, sessionID string) {
	t.markTriggered()
	go func() {
		if err := t.run(ctx, sessionID); err != nil {
			t.log.Warn(ctx, "trigger: reference check failed", "error", err.Error())
		}
	}()
}

func (t *ReferenceCheckTrigger) run(ctx context.Context, sessionID string) error {
	if t.source == nil {
		return nil
	}
	reqs, err := t.source(ctx)
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		return nil
	}

	selected := selectTopK(reqs, t.topK)
	if len(selected) == 0 {
		return nil
	}

	if t.b != nil {
		t.b.Publish(ctx, bus.NewEvent(bus.EventReferenceCheckTriggered, sessionID, map[string]any{
			"requirement_count": len(selected),
		}))
	}

	prompt := ""
	if t.render != nil {
		prompt = t.render(selected)
	}

	if t.b != nil {
		t.b.Publish(ctx, bus.NewEvent(bus.EventReferenceCheckCompleted, sessionID, map[string]any{
			"requirement_count": len(selected),
			"prompt":            prompt,
		}))
	}
	return nil
}

func selectTopK(reqs []Requirement, k int) []Requirement {
	var incomplete []Requirement
	for _, r := range reqs {
		if !r.Complete {
			incomplete = append(incomplete, r)
		}
	}
	sort.Slice(incomplete, func(i, j int) bool { return incomplete[i].Priority > incomplete[j].Priority })
	if len(incomplete) > k {
		incomplete = incomplete[:k]
	}
	return incomplete
}
