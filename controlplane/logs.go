package controlplane

import (
	"time"

	"github.com/subagentctl/subagentctl/snapshot"
	"github.com/subagentctl/subagentctl/subagenterr"
)

// LogsFilter narrows the `logs` operation (spec §6:
// `logs({session?, since?, event_type?, task_id?, lines})`).
type LogsFilter struct {
	Session   string
	Since     time.Time
	EventType string
	TaskID    string
	Lines     int
}

// Logs tails filter.Session's activity log and applies every filter field
// set to a non-zero value, in the order since -> event_type -> task_id
// (spec §6 `logs`). Session is required: the activity log is one file per
// session (spec §6 on-disk layout), so there is no project-wide tail to
// fall back to. This method's own name shadows the embedded Runtime's Logs
// field, so it is reached via cp.Runtime.Logs.
func (cp *ControlPlane) Logs(filter LogsFilter) ([]snapshot.LogLine, error) {
	if filter.Session == "" {
		return nil, subagenterr.New(subagenterr.KindValidation, "logs: session is required")
	}
	lines, err := cp.Runtime.Logs.Tail(filter.Session, filter.Lines)
	if err != nil {
		return nil, err
	}

	out := lines[:0]
	for _, l := range lines {
		if !filter.Since.IsZero() && l.Timestamp.Before(filter.Since) {
			continue
		}
		if filter.EventType != "" && l.EventType != filter.EventType {
			continue
		}
		if filter.TaskID != "" && l.TaskID != filter.TaskID {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}
