package controlplane

import (
	"context"

	"github.com/subagentctl/subagentctl/agentreg"
	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/model"
)

// StatusReport is the `status` operation's result: the active session (if
// any), per-status agent counts, pending approvals, and bus counters
// (spec §6).
type StatusReport struct {
	Session          *model.Session
	AgentsByStatus   map[model.AgentStatus]int
	PendingApprovals int
	Bus              bus.Stats
}

// Status summarizes the runtime's current state across every wired
// component; it takes no locks of its own beyond what each store already
// holds internally.
func (cp *ControlPlane) Status(ctx context.Context) (StatusReport, error) {
	report := StatusReport{
		AgentsByStatus: make(map[model.AgentStatus]int),
		Bus:            cp.Bus.Stats(),
	}

	if sess, err := cp.Sessions.Current(); err == nil {
		s := sess
		report.Session = &s
	}

	agents, err := cp.Agents.List(ctx, agentreg.Filter{})
	if err != nil {
		return report, err
	}
	for _, a := range agents {
		report.AgentsByStatus[a.Status]++
	}

	pending, err := cp.Approvals.List(true)
	if err != nil {
		return report, err
	}
	report.PendingApprovals = len(pending)

	return report, nil
}
