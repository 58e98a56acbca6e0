package logwriter

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/subagentctl/subagentctl/snapshot"
)

// Tail reads the last n lines of sessionID's log file and returns them as
// snapshot.LogLine, for handoff-summary rendering (spec §4.O, §9.3) and
// the control plane's `logs` operation (spec §6).
func (w *Writer) Tail(sessionID string, n int) ([]snapshot.LogLine, error) {
	path := w.path(sessionID)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("logwriter: open: %w", err)
	}
	defer f.Close()

	var sc *bufio.Scanner
	if w.gzip {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("logwriter: gzip reader: %w", err)
		}
		defer zr.Close()
		sc = bufio.NewScanner(zr)
	} else {
		sc = bufio.NewScanner(f)
	}
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var all []snapshot.LogLine
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		all = append(all, toLogLine(raw))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("logwriter: scan: %w", err)
	}

	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func toLogLine(raw map[string]any) snapshot.LogLine {
	l := snapshot.LogLine{}
	if ts, ok := raw["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			l.Timestamp = t
		}
	}
	if et, ok := raw["event_type"].(string); ok {
		l.EventType = et
	}
	if sid, ok := raw["session_id"].(string); ok {
		l.SessionID = sid
	}
	if tid, ok := raw["task_id"].(string); ok {
		l.TaskID = tid
	}
	l.Summary = summarize(raw)
	return l
}

func summarize(raw map[string]any) string {
	var parts []string
	for _, key := range []string{"agent_id", "agent_type", "task_id", "tool", "reason", "error"} {
		if v, ok := raw[key]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", key, v))
		}
	}
	return strings.Join(parts, " ")
}
