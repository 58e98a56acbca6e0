// Package inmemengine is the default workflow.Engine: goroutine + channel
// fan-out over ready tasks, entirely in-process (spec §4.M, §5). It simply
// delegates to Workflow.Run, which already implements the wave-by-wave
// execution loop; this package exists so callers depend on the Engine
// interface rather than the concrete Workflow type, matching the
// teacher's engine/inmem vs. engine.Engine split.
package inmemengine

import (
	"context"

	"github.com/subagentctl/subagentctl/workflow"
)

// Engine runs workflows entirely in the calling process.
type Engine struct{}

// New constructs an in-memory Engine.
func New() *Engine { return &Engine{} }

// Run executes wf to completion.
func (e *Engine) Run(ctx context.Context, wf *workflow.Workflow) error {
	return wf.Run(ctx)
}
