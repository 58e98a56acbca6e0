package controlplane

import (
	"context"

	"github.com/subagentctl/subagentctl/quality"
)

// ReviewInput is what a caller must assemble before calling Review: the
// set of modified paths and their content, gathered however it sees fit
// (working-tree diff, patch payload, ...). The control plane itself has
// no git integration to source this from.
type ReviewInput struct {
	TaskID         string
	ModifiedPaths  []string
	Files          map[string]string
	CanModifyTests bool
}

// Review runs the quality gates against taskID's modified files and
// returns the gate summary (spec §6 `review(task_id)`). A fresh
// quality.Runner is constructed per call because the gate set depends on
// ReviewInput's per-call modified paths; Runtime.Quality stays a
// zero-gate Runner usable for plumbing test.run_started/completed with no
// gates when a caller wants to just record a pass.
func (cp *ControlPlane) Review(ctx context.Context, sessionID string, in ReviewInput) quality.Summary {
	runner := quality.New(cp.Bus, cp.Log,
		&quality.ProtectedTestsGate{ModifiedPaths: in.ModifiedPaths, CanModifyTests: in.CanModifyTests},
		&quality.SecretScanGate{Files: in.Files},
	)
	return runner.Run(ctx, sessionID)
}
