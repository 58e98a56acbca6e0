package controlplane

import (
	"context"

	"github.com/subagentctl/subagentctl/model"
)

// SessionStart begins a new session (spec §6 `session_start`). format is
// the strftime-like session ID layout; an empty format uses the
// configured default (spec §6 config `session_id.format`).
func (cp *ControlPlane) SessionStart(ctx context.Context, format string, metadata map[string]any) (model.Session, error) {
	if format == "" {
		format = cp.Config.SessionID.Format
	}
	return cp.Sessions.Start(ctx, format, metadata)
}

// SessionEnd marks sessionID completed or failed (spec §6 `session_end`).
func (cp *ControlPlane) SessionEnd(ctx context.Context, sessionID string, status model.SessionStatus) (model.Session, error) {
	return cp.Sessions.End(ctx, sessionID, status)
}

// SessionList enumerates every persisted session (spec §6 `session_list`).
func (cp *ControlPlane) SessionList() ([]model.Session, error) {
	return cp.Sessions.List()
}
