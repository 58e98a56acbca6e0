// Package approval persists ApprovalRecords (state/approvals.json per spec
// §6) and implements the control-plane's approvals_list/approvals_decide
// operations, grounded on agentreg.FileStore's single-file atomic layout.
// It satisfies permission.ApprovalStore so the tool proxy can both persist
// newly-required approvals and, here, list/decide them later.
package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/model"
)

// Store persists every ApprovalRecord in a single JSON file.
type Store struct {
	mu   sync.Mutex
	path string
	b    bus.Bus
}

// New constructs a Store backed by path (typically
// filepath.Join(cfg.DataDir, "state", "approvals.json")).
func New(path string, b bus.Bus) *Store {
	return &Store{path: path, b: b}
}

type fileRecords struct {
	Approvals map[string]model.ApprovalRecord `json:"approvals"`
}

func (s *Store) readLocked() (fileRecords, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileRecords{Approvals: make(map[string]model.ApprovalRecord)}, nil
		}
		return fileRecords{}, err
	}
	var fr fileRecords
	if err := json.Unmarshal(data, &fr); err != nil {
		return fileRecords{}, fmt.Errorf("approval: parse %s: %w", s.path, err)
	}
	if fr.Approvals == nil {
		fr.Approvals = make(map[string]model.ApprovalRecord)
	}
	return fr, nil
}

func (s *Store) writeLocked(fr fileRecords) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("approval: mkdir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(fr, "", "  ")
	if err != nil {
		return fmt.Errorf("approval: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".approvals-*.json")
	if err != nil {
		return fmt.Errorf("approval: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("approval: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("approval: rename into %s: %w", s.path, err)
	}
	return nil
}

// Save implements permission.ApprovalStore.
func (s *Store) Save(_ context.Context, rec model.ApprovalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, err := s.readLocked()
	if err != nil {
		return err
	}
	fr.Approvals[rec.ApprovalID] = rec
	return s.writeLocked(fr)
}

// Load implements permission.ApprovalStore.
func (s *Store) Load(_ context.Context, approvalID string) (model.ApprovalRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, err := s.readLocked()
	if err != nil {
		return model.ApprovalRecord{}, false, err
	}
	rec, ok := fr.Approvals[approvalID]
	return rec, ok, nil
}

// List returns every persisted approval, optionally filtered to those
// still in status "required" when pendingOnly is set.
func (s *Store) List(pendingOnly bool) ([]model.ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	out := make([]model.ApprovalRecord, 0, len(fr.Approvals))
	for _, rec := range fr.Approvals {
		if pendingOnly && rec.Status != model.ApprovalRequired {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Decide records a grant/deny decision for approvalID and publishes
// approval.decided plus the granted/denied-specific event (spec §6
// event-type registry: approval.{required,decided,granted,denied}).
func (s *Store) Decide(ctx context.Context, sessionID, approvalID string, grant bool) (model.ApprovalRecord, error) {
	s.mu.Lock()
	fr, err := s.readLocked()
	if err != nil {
		s.mu.Unlock()
		return model.ApprovalRecord{}, err
	}
	rec, ok := fr.Approvals[approvalID]
	if !ok {
		s.mu.Unlock()
		return model.ApprovalRecord{}, fmt.Errorf("approval: %s: %w", approvalID, errNotFound)
	}
	now := time.Now().UTC()
	rec.UpdatedAt = now
	if grant {
		rec.Status = model.ApprovalGranted
		rec.Decision = "granted"
	} else {
		rec.Status = model.ApprovalDenied
		rec.Decision = "denied"
	}
	fr.Approvals[approvalID] = rec
	err = s.writeLocked(fr)
	s.mu.Unlock()
	if err != nil {
		return model.ApprovalRecord{}, err
	}

	if s.b != nil {
		s.b.Publish(ctx, bus.NewEvent(bus.EventApprovalDecided, sessionID, map[string]any{
			"approval_id": approvalID, "decision": rec.Decision,
		}))
		if grant {
			s.b.Publish(ctx, bus.NewEvent(bus.EventApprovalGranted, sessionID, map[string]any{"approval_id": approvalID}))
		} else {
			s.b.Publish(ctx, bus.NewEvent(bus.EventApprovalDenied, sessionID, map[string]any{"approval_id": approvalID}))
		}
	}
	return rec, nil
}

var errNotFound = fmt.Errorf("approval record not found")
