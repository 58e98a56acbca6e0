package router

import (
	"context"
	"regexp"
	"sync"

	"github.com/subagentctl/subagentctl/bus"
)

// qualityFailurePatterns are error-text substrings that suggest a weak/base
// tier model produced a low-quality result worth escalating (spec §4.L).
var qualityFailurePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)hallucinat`),
	regexp.MustCompile(`(?i)incorrect syntax`),
	regexp.MustCompile(`(?i)failed to follow instructions`),
	regexp.MustCompile(`(?i)repeated (the )?same mistake`),
	regexp.MustCompile(`(?i)low.confidence`),
}

// Subscriber converts agent.invoked events into model.selected emissions,
// and recommends a tier upgrade on agent.failed when the error text
// matches a quality pattern (spec §4.L). Recommendations are idempotent
// per (session_id, agent_id): at most one model.tier_upgrade fires per
// agent per session.
type Subscriber struct {
	router *Router
	b      bus.Bus

	mu         sync.Mutex
	recommended map[string]bool
}

// NewSubscriber constructs a Subscriber over router, publishing to b.
func NewSubscriber(router *Router, b bus.Bus) *Subscriber {
	return &Subscriber{router: router, b: b, recommended: make(map[string]bool)}
}

// HandleEvent implements bus.Handler. It reacts to agent.invoked and
// agent.failed; every other event type is ignored.
func (s *Subscriber) HandleEvent(ctx context.Context, e bus.Event) error {
	switch e.Type() {
	case bus.EventAgentInvoked:
		s.onInvoked(ctx, e)
	case bus.EventAgentFailed:
		s.onFailed(ctx, e)
	}
	return nil
}

func (s *Subscriber) onInvoked(ctx context.Context, e bus.Event) {
	taskType, _ := e.Get("agent_type")
	contextTokens, _ := e.Get("context_tokens")
	task := Task{Type: asString(taskType)}
	if n, ok := contextTokens.(int); ok {
		task.ContextTokens = n
	}
	result := s.router.Select(task, false)
	s.b.Publish(ctx, bus.NewEvent(bus.EventModelSelected, e.SessionID(), map[string]any{
		"tier":             string(result.Tier),
		"model":            result.Model,
		"complexity_score": result.ComplexityScore,
		"agent_id":         asString(firstOf(e, "agent_id")),
	}, bus.WithTraceID(e.TraceID())))
}

func (s *Subscriber) onFailed(ctx context.Context, e bus.Event) {
	errText, _ := e.Get("error")
	if !matchesQualityPattern(asString(errText)) {
		return
	}
	agentID := asString(firstOf(e, "agent_id"))
	key := e.SessionID() + "|" + agentID
	s.mu.Lock()
	if s.recommended[key] {
		s.mu.Unlock()
		return
	}
	s.recommended[key] = true
	s.mu.Unlock()

	s.b.Publish(ctx, bus.NewEvent(bus.EventModelTierUpgrade, e.SessionID(), map[string]any{
		"agent_id": agentID,
		"reason":   "quality_failure",
	}, bus.WithTraceID(e.TraceID())))
}

func matchesQualityPattern(text string) bool {
	if text == "" {
		return false
	}
	for _, re := range qualityFailurePatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func firstOf(e bus.Event, key string) any {
	v, _ := e.Get(key)
	return v
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
