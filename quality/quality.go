// Package quality implements the pre-handoff quality gates (SPEC_FULL.md §9,
// grounded on original_source/src/quality/gates.py): a small Gate interface
// run by a Runner that publishes test.run_started/test.run_completed so the
// bus/log/analytics pipeline observes every gate pass for free.
package quality

import (
	"context"
	"time"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/telemetry"
)

// Result mirrors gates.py's GateResult: a gate's name, pass/fail, whether
// failure should block a handoff, a human message, and structured detail.
type Result struct {
	Name     string
	Passed   bool
	Required bool
	Message  string
	Duration time.Duration
	Details  map[string]any
}

// Gate is one quality check run before a handoff completes.
type Gate interface {
	Name() string
	Run(ctx context.Context) Result
}

// Runner runs a fixed list of gates in order, publishing test.run_started
// before the batch and test.run_completed after, with a Summary of every
// gate's Result attached to the completed event's payload.
type Runner struct {
	gates []Gate
	b     bus.Bus
	log   telemetry.Logger
}

// New constructs a Runner over gates, run in the order given.
func New(b bus.Bus, log telemetry.Logger, gates ...Gate) *Runner {
	if log == nil {
		log = telemetry.NoopLogger{}
	}
	return &Runner{gates: gates, b: b, log: log}
}

// Summary is the outcome of one Run: every gate's Result plus whether any
// required gate failed.
type Summary struct {
	Results []Result
	Passed  bool
}

// Run executes every gate in order, even after a required gate fails, so a
// handoff summary can report every check's outcome rather than stopping at
// the first failure (gates.py's runner.py composes gates the same way).
func (r *Runner) Run(ctx context.Context, sessionID string) Summary {
	if r.b != nil {
		r.b.Publish(ctx, bus.NewEvent(bus.EventTestRunStarted, sessionID, map[string]any{
			"gate_count": len(r.gates),
		}))
	}

	summary := Summary{Passed: true}
	for _, g := range r.gates {
		start := time.Now()
		res := g.Run(ctx)
		if res.Duration == 0 {
			res.Duration = time.Since(start)
		}
		if res.Name == "" {
			res.Name = g.Name()
		}
		summary.Results = append(summary.Results, res)
		if !res.Passed && res.Required {
			summary.Passed = false
		}
		r.log.Info(ctx, "quality: gate ran", "name", res.Name, "passed", res.Passed, "required", res.Required)
	}

	if r.b != nil {
		r.b.Publish(ctx, bus.NewEvent(bus.EventTestRunCompleted, sessionID, map[string]any{
			"passed": summary.Passed,
			"gates":  resultPayloads(summary.Results),
		}))
	}
	return summary
}

func resultPayloads(results []Result) []map[string]any {
	out := make([]map[string]any, 0, len(results))
	for _, r := range results {
		out = append(out, map[string]any{
			"name":        r.Name,
			"passed":      r.Passed,
			"required":    r.Required,
			"message":     r.Message,
			"duration_ms": r.Duration.Milliseconds(),
		})
	}
	return out
}
