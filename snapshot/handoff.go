package snapshot

import (
	"fmt"
	"strings"
	"time"
)

// LogLine is the minimal shape handoff rendering needs from the activity
// log tail; logwriter.Reader produces these.
type LogLine struct {
	Timestamp time.Time
	EventType string
	Summary   string
	SessionID string
	TaskID    string
}

// CreateHandoffSummary renders Markdown combining the latest snapshot for
// sessionID and recentEvents into a handoff document, written to
// handoffs/{session_id}_{reason}.md by the caller (spec §6, §4.O;
// SPEC_FULL.md §9.3, grounded on the original's session_summary.py).
// CreateHandoffSummary itself only renders; it does not write files.
func (m *Manager) CreateHandoffSummary(sessionID, reason string, recentEvents []LogLine) (string, error) {
	latest, ok := m.Latest(sessionID)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Handoff: %s\n\n", sessionID)
	fmt.Fprintf(&sb, "**Reason:** %s\n\n", reason)
	fmt.Fprintf(&sb, "**Generated:** %s\n\n", time.Now().UTC().Format(time.RFC3339))

	sb.WriteString("## Latest Snapshot\n\n")
	if !ok {
		sb.WriteString("_No snapshot available for this session._\n\n")
	} else {
		fmt.Fprintf(&sb, "- Snapshot ID: `%s`\n", latest.SnapshotID)
		fmt.Fprintf(&sb, "- Created: %s\n", latest.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "- Trigger: %s\n", latest.Trigger)
		fmt.Fprintf(&sb, "- Active agents: %d\n", latest.AgentCount)
		fmt.Fprintf(&sb, "- Tokens in context: %d\n", latest.TokenCount)
		if latest.GitState != "" {
			fmt.Fprintf(&sb, "- Git state: %s\n", latest.GitState)
		}
		if len(latest.FilesInContext) > 0 {
			sb.WriteString("- Files in context:\n")
			for _, f := range latest.FilesInContext {
				fmt.Fprintf(&sb, "  - `%s`\n", f)
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Recent Activity\n\n")
	if len(recentEvents) == 0 {
		sb.WriteString("_No recent events recorded._\n")
		return sb.String(), nil
	}
	for _, e := range recentEvents {
		fmt.Fprintf(&sb, "- `%s` %s — %s\n", e.Timestamp.Format(time.RFC3339), e.EventType, e.Summary)
	}
	return sb.String(), nil
}
