// Package controlplane implements the external method surface from spec
// §6 (status, session_*, task_*, agent_*, tool_*, metrics, review,
// handoff, logs, approvals_*) as methods on *runtime.Runtime. Adapters
// (CLI/MCP/HTTP) call these methods; none live in this package.
package controlplane

import (
	"time"

	"github.com/subagentctl/subagentctl/runtime"
	"github.com/subagentctl/subagentctl/subagenterr"
)

// ControlPlane wraps a *runtime.Runtime with the spec §6 method surface.
// Embedding rather than a free function set keeps every operation able to
// reach the full set of wired components (bus, stores, proxy, router, ...)
// without threading them through individually.
type ControlPlane struct {
	*runtime.Runtime
}

// New wraps rt with the control-plane operations.
func New(rt *runtime.Runtime) *ControlPlane {
	return &ControlPlane{Runtime: rt}
}

// ExitCode maps a returned error to the spec §6 exit-code taxonomy: 0
// success, 1 validation/usage error, 2 denied (permission or approval).
// Any error not recognized as one of those kinds still counts as 1, since
// an unclassified failure is a usage/operational error rather than a
// deliberate deny.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if se, ok := subagenterr.As(err, subagenterr.KindPermissionDenied); ok {
		_ = se
		return 2
	}
	if se, ok := subagenterr.As(err, subagenterr.KindApprovalRequired); ok {
		_ = se
		return 2
	}
	return 1
}

func nowUTC() time.Time { return time.Now().UTC() }
