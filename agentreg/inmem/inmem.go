// Package inmem provides an in-memory agentreg.Store for tests, mirroring
// runtime/agent/run/inmem's defensive-copy discipline.
package inmem

import (
	"context"
	"sync"

	"github.com/subagentctl/subagentctl/model"
)

// Store implements agentreg.Store with no durability.
type Store struct {
	mu      sync.RWMutex
	records map[string]model.AgentRecord
}

// New constructs an empty Store.
func New() *Store {
	return &Store{records: make(map[string]model.AgentRecord)}
}

// Upsert inserts or replaces the record keyed by AgentID.
func (s *Store) Upsert(_ context.Context, rec model.AgentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.AgentID] = cloneRecord(rec)
	return nil
}

// Load returns the record for agentID, or ok=false if absent.
func (s *Store) Load(_ context.Context, agentID string) (model.AgentRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[agentID]
	if !ok {
		return model.AgentRecord{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

// List returns every stored record.
func (s *Store) List(_ context.Context) ([]model.AgentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AgentRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

func cloneRecord(rec model.AgentRecord) model.AgentRecord {
	cp := rec
	if rec.Metadata != nil {
		cp.Metadata = make(map[string]any, len(rec.Metadata))
		for k, v := range rec.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}
