package controlplane

import (
	"context"

	"github.com/subagentctl/subagentctl/agentreg"
	"github.com/subagentctl/subagentctl/snapshot"
)

// Handoff creates a fresh snapshot, renders the handoff markdown combining
// it with the last tailLines of activity, and returns the rendered
// document along with the snapshot it captured (spec §6 `handoff(reason)`,
// §4.O `create_handoff_summary`). The caller persists the markdown to
// handoffs/{session_id}_{reason}.md (spec §6 on-disk layout); this method
// only renders.
func (cp *ControlPlane) Handoff(ctx context.Context, reason string, tailLines int) (string, error) {
	sess, err := cp.Sessions.Current()
	if err != nil {
		return "", err
	}

	agents, err := cp.agentCountAndTokens(ctx, sess.SessionID)
	if err != nil {
		return "", err
	}

	if _, err := cp.Snapshot.Create(ctx, sess.SessionID, reason, agents.count, agents.tokens, nil, "", nil); err != nil {
		return "", err
	}

	var recent []snapshot.LogLine
	if cp.Runtime.Logs != nil {
		recent, err = cp.Runtime.Logs.Tail(sess.SessionID, tailLines)
		if err != nil {
			return "", err
		}
	}
	return cp.Snapshot.CreateHandoffSummary(sess.SessionID, reason, recent)
}

type agentTotals struct {
	count  int
	tokens int
}

func (cp *ControlPlane) agentCountAndTokens(ctx context.Context, sessionID string) (agentTotals, error) {
	recs, err := cp.Agents.List(ctx, agentreg.Filter{SessionID: sessionID})
	if err != nil {
		return agentTotals{}, err
	}
	var tokens int
	for _, rec := range recs {
		tokens += rec.Metrics.TokensUsed
	}
	return agentTotals{count: len(recs), tokens: tokens}, nil
}
