// Package session owns Session creation, persistence, and the
// current.json pointer (spec §3, §6). Exactly one session may be active at
// a time; start_session persists the record atomically and updates the
// pointer, end_session marks it completed/failed.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/ident"
	"github.com/subagentctl/subagentctl/model"
)

// Pointer is the contents of sessions/current.json.
type Pointer struct {
	SessionID string    `json:"session_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists Session records and the current-session pointer under a
// directory following spec §6's on-disk layout:
// sessions/{session_id}.json and sessions/current.json. Writes are
// temp-then-rename, matching every other atomic store in this module
// (grounded on runtime/agent/run/inmem's defensive-copy discipline,
// adapted here to disk instead of memory since sessions must survive
// process restarts per spec §6).
type Store struct {
	mu  sync.Mutex
	dir string
	bus bus.Bus
}

// NewStore constructs a Store rooted at dir (typically
// filepath.Join(cfg.DataDir, "sessions")). The directory is created lazily
// on first write.
func NewStore(dir string, b bus.Bus) *Store {
	return &Store{dir: dir, bus: b}
}

// Start creates a new active Session, persists it, and updates
// current.json. format is the strftime-like session ID layout (spec §6
// default "session_%Y%m%d_%H%M%S"); an empty format uses that default via
// package ident.
func (s *Store) Start(ctx context.Context, format string, metadata map[string]any) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	sess := model.Session{
		SessionID: ident.SessionID(format, now),
		StartedAt: now,
		Status:    model.SessionActive,
		Metadata:  metadata,
	}
	if err := s.writeSessionLocked(sess); err != nil {
		return model.Session{}, err
	}
	if err := s.writePointerLocked(Pointer{SessionID: sess.SessionID, UpdatedAt: now}); err != nil {
		return model.Session{}, err
	}
	if s.bus != nil {
		s.bus.Publish(ctx, bus.NewEvent(bus.EventSessionStarted, sess.SessionID, map[string]any{
			"session_id": sess.SessionID,
		}))
	}
	return sess, nil
}

// End marks sessionID's record with status (completed or failed) and
// stamps EndedAt. It does not clear current.json: the pointer always
// names the most recently started session, per spec §3 ("at most one
// active session referenced by current.json" — an ended session simply
// stops being active, it need not be un-pointed-to for Current() to keep
// working as "most recent session").
func (s *Store) End(ctx context.Context, sessionID string, status model.SessionStatus) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.readSessionLocked(sessionID)
	if err != nil {
		return model.Session{}, err
	}
	now := time.Now().UTC()
	sess.EndedAt = &now
	sess.Status = status
	if err := s.writeSessionLocked(sess); err != nil {
		return model.Session{}, err
	}
	if s.bus != nil {
		s.bus.Publish(ctx, bus.NewEvent(bus.EventSessionEnded, sess.SessionID, map[string]any{
			"session_id": sess.SessionID,
			"status":     string(status),
		}))
	}
	return sess, nil
}

// Get reads the session record for sessionID.
func (s *Store) Get(sessionID string) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSessionLocked(sessionID)
}

// Current resolves the pointer in current.json and loads that session. It
// returns os.ErrNotExist if no session has ever started.
func (s *Store) Current() (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.pointerPath())
	if err != nil {
		return model.Session{}, err
	}
	var p Pointer
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Session{}, fmt.Errorf("session: parse current.json: %w", err)
	}
	return s.readSessionLocked(p.SessionID)
}

// List enumerates every persisted session record.
func (s *Store) List() ([]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []model.Session
	for _, e := range entries {
		if e.IsDir() || e.Name() == "current.json" || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		sess, err := s.readSessionLocked(e.Name()[:len(e.Name())-len(".json")])
		if err != nil {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *Store) sessionPath(id string) string { return filepath.Join(s.dir, id+".json") }
func (s *Store) pointerPath() string          { return filepath.Join(s.dir, "current.json") }

func (s *Store) readSessionLocked(id string) (model.Session, error) {
	data, err := os.ReadFile(s.sessionPath(id))
	if err != nil {
		return model.Session{}, err
	}
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return model.Session{}, fmt.Errorf("session: parse %s: %w", id, err)
	}
	return sess, nil
}

func (s *Store) writeSessionLocked(sess model.Session) error {
	return atomicWriteJSON(s.dir, s.sessionPath(sess.SessionID), sess)
}

func (s *Store) writePointerLocked(p Pointer) error {
	return atomicWriteJSON(s.dir, s.pointerPath(), p)
}

// atomicWriteJSON marshals v and writes it to path via a temp-file-then-
// rename so concurrent readers never observe a partial write (spec §5
// shared-resource policy).
func atomicWriteJSON(dir, path string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("session: mkdir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("session: create temp in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("session: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("session: close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("session: rename into %s: %w", path, err)
	}
	return nil
}
