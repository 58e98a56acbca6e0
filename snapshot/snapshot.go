// Package snapshot implements the Snapshot Manager (spec §4.O):
// create/restore/list/cleanup of point-in-time session snapshots, written
// atomically (temp-then-rename, optional gzip) under state/, plus a
// handoff summary renderer combining the latest snapshot with recent log
// lines (SPEC_FULL.md §4.O / §9.3, grounded on the original's
// session_summary.py).
package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/ident"
	"github.com/subagentctl/subagentctl/model"
)

// Manager creates, restores, lists, and expires snapshots under dir
// (state/ by default, spec §6 on-disk layout).
type Manager struct {
	dir    string
	b      bus.Bus
	gzip   bool
	mu     sync.Mutex
	nextID map[string]int // per-session sequence counter, e.g. snap001
}

// New constructs a Manager. gz enables gzip compression of written
// snapshot files (spec §4.O: "Write is temp-then-rename with optional
// gzip").
func New(dir string, b bus.Bus, gz bool) *Manager {
	return &Manager{dir: dir, b: b, gzip: gz, nextID: make(map[string]int)}
}

func (m *Manager) fileName(sessionID string, seq int) string {
	name := fmt.Sprintf("%s_snap%03d.json", sessionID, seq)
	if m.gzip {
		name += ".gz"
	}
	return name
}

// Create serializes a new snapshot for sessionID and writes it atomically
// to dir/<session_id>_snap<NNN>.json[.gz] (spec §6, §4.O).
func (m *Manager) Create(ctx context.Context, sessionID string, trigger string, agentCount, tokenCount int, filesInContext []string, gitState string, agentContext map[string]any) (model.Snapshot, error) {
	m.mu.Lock()
	m.nextID[sessionID]++
	seq := m.nextID[sessionID]
	m.mu.Unlock()

	snap := model.Snapshot{
		SnapshotID:     ident.New("snap"),
		SessionID:      sessionID,
		Trigger:        trigger,
		CreatedAt:      time.Now().UTC(),
		AgentCount:     agentCount,
		TokenCount:     tokenCount,
		FilesInContext: append([]string(nil), filesInContext...),
		GitState:       gitState,
		AgentContext:   agentContext,
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot: mkdir: %w", err)
	}
	path := filepath.Join(m.dir, m.fileName(sessionID, seq))
	if err := m.writeAtomic(path, snap); err != nil {
		return model.Snapshot{}, err
	}

	if m.b != nil {
		m.b.Publish(ctx, bus.NewEvent(bus.EventSnapshotCreated, sessionID, map[string]any{
			"snapshot_id": snap.SnapshotID,
			"trigger":     trigger,
			"path":        path,
		}))
	}
	return snap, nil
}

func (m *Manager) writeAtomic(path string, snap model.Snapshot) error {
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}
	if m.gzip {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return fmt.Errorf("snapshot: gzip write: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("snapshot: gzip close: %w", err)
		}
		raw = buf.Bytes()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot: tempfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("snapshot: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	return nil
}

// Restore reads back a snapshot by ID. It is read-only and never touches
// the agent registry (SPEC_FULL.md Open Question 5).
func (m *Manager) Restore(snapshotID string) (model.Snapshot, error) {
	entries, err := m.entries()
	if err != nil {
		return model.Snapshot{}, err
	}
	for _, e := range entries {
		snap, err := m.readFile(e.path)
		if err != nil {
			continue
		}
		if snap.SnapshotID == snapshotID {
			return snap, nil
		}
	}
	return model.Snapshot{}, fmt.Errorf("snapshot: %s not found", snapshotID)
}

type snapshotFile struct {
	path    string
	modTime time.Time
}

func (m *Manager) entries() ([]snapshotFile, error) {
	dirEntries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: readdir: %w", err)
	}
	var out []snapshotFile
	for _, de := range dirEntries {
		if de.IsDir() || !strings.Contains(de.Name(), "_snap") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, snapshotFile{path: filepath.Join(m.dir, de.Name()), modTime: info.ModTime()})
	}
	return out, nil
}

func (m *Manager) readFile(path string) (model.Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.Snapshot{}, err
	}
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("snapshot: gzip reader: %w", err)
		}
		defer zr.Close()
		raw, err = io.ReadAll(zr)
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("snapshot: gzip read: %w", err)
		}
	}
	var snap model.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	return snap, nil
}

// List enumerates snapshots, optionally filtered to one sessionID (empty
// string means all sessions), newest first.
func (m *Manager) List(sessionID string) ([]model.Snapshot, error) {
	entries, err := m.entries()
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].modTime.After(entries[j].modTime) })

	out := make([]model.Snapshot, 0, len(entries))
	for _, e := range entries {
		snap, err := m.readFile(e.path)
		if err != nil {
			continue
		}
		if sessionID != "" && snap.SessionID != sessionID {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// Cleanup removes snapshot files older than olderThan, returning the
// number removed.
func (m *Manager) Cleanup(olderThan time.Time) (int, error) {
	entries, err := m.entries()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.modTime.Before(olderThan) {
			if err := os.Remove(e.path); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Latest returns the most recently created snapshot for sessionID.
func (m *Manager) Latest(sessionID string) (model.Snapshot, bool) {
	snaps, err := m.List(sessionID)
	if err != nil || len(snaps) == 0 {
		return model.Snapshot{}, false
	}
	return snaps[0], true
}
