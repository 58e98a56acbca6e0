package schema

import (
	"context"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/subagenterr"
	"github.com/subagentctl/subagentctl/telemetry"
)

// ValidatingBus wraps a Bus so every Publish/PublishAndWait is checked
// against a Registry before fan-out (spec §4.B: "the bus validates via
// (B), fans out"; spec §7: a ValidationError is "rejected at publish,
// reported to caller, not logged as event"). Subscribe/Stats/Clear pass
// straight through to the wrapped Bus.
type ValidatingBus struct {
	bus.Bus
	registry *Registry
	log      telemetry.Logger
}

// NewValidatingBus wraps inner with schema validation backed by registry.
// A nil log falls back to telemetry.NoopLogger.
func NewValidatingBus(inner bus.Bus, registry *Registry, log telemetry.Logger) *ValidatingBus {
	if log == nil {
		log = telemetry.NoopLogger{}
	}
	return &ValidatingBus{Bus: inner, registry: registry, log: log}
}

// Publish validates e's payload and drops it without fanning out on
// violation, logging the rejection rather than publishing it as an event
// (spec §7). Fire-and-forget Publish has no error return, so this is the
// strongest "reported to caller" available at this call shape; callers
// needing the violation itself should use PublishAndWait.
func (v *ValidatingBus) Publish(ctx context.Context, e bus.Event) {
	if result := v.registry.Validate(e.Type(), e.Payload()); !result.OK() {
		v.log.Error(ctx, "schema: rejected invalid event at publish",
			"event_type", string(e.Type()), "violations", violationStrings(result.Violations))
		return
	}
	v.Bus.Publish(ctx, e)
}

// PublishAndWait validates e's payload and, on violation, returns a
// subagenterr.KindValidation error immediately without dispatching to any
// subscriber.
func (v *ValidatingBus) PublishAndWait(ctx context.Context, e bus.Event) error {
	if result := v.registry.Validate(e.Type(), e.Payload()); !result.OK() {
		return subagenterr.Newf(subagenterr.KindValidation, "event %q: %s", e.Type(), violationStrings(result.Violations))
	}
	return v.Bus.PublishAndWait(ctx, e)
}

func violationStrings(violations []Violation) string {
	out := ""
	for i, v := range violations {
		if i > 0 {
			out += "; "
		}
		out += v.String()
	}
	return out
}
