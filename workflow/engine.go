package workflow

import "context"

// Engine abstracts workflow execution so a durable backend (Temporal) can
// be swapped in for the default in-memory one without touching callers,
// mirroring runtime/agent/engine.Engine's pluggable-backend shape scaled
// down to this module's single DAG-of-AgentTasks use case (spec §4.M).
type Engine interface {
	// Run executes wf to completion (or to the point where it is stuck on
	// a failed dependency) and returns once every task has reached a
	// terminal status or no further tasks can become ready.
	Run(ctx context.Context, wf *Workflow) error
}
