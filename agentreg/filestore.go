package agentreg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/subagentctl/subagentctl/model"
)

// FileStore persists every AgentRecord in a single JSON file
// (state/agents.json per spec §6), written atomically via
// temp-then-rename. Readers tolerate a momentarily absent file by treating
// it as an empty registry, per spec §5's shared-resource policy.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore constructs a FileStore backed by path (typically
// filepath.Join(cfg.DataDir, "state", "agents.json")).
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type fileRecords struct {
	Agents map[string]model.AgentRecord `json:"agents"`
}

func (f *FileStore) readLocked() (fileRecords, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileRecords{Agents: make(map[string]model.AgentRecord)}, nil
		}
		return fileRecords{}, err
	}
	var fr fileRecords
	if err := json.Unmarshal(data, &fr); err != nil {
		return fileRecords{}, fmt.Errorf("agentreg: parse %s: %w", f.path, err)
	}
	if fr.Agents == nil {
		fr.Agents = make(map[string]model.AgentRecord)
	}
	return fr, nil
}

func (f *FileStore) writeLocked(fr fileRecords) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("agentreg: mkdir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(fr, "", "  ")
	if err != nil {
		return fmt.Errorf("agentreg: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".agents-*.json")
	if err != nil {
		return fmt.Errorf("agentreg: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("agentreg: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("agentreg: rename into %s: %w", f.path, err)
	}
	return nil
}

// Upsert inserts or replaces a record and rewrites the whole file.
func (f *FileStore) Upsert(_ context.Context, rec model.AgentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fr, err := f.readLocked()
	if err != nil {
		return err
	}
	fr.Agents[rec.AgentID] = rec
	return f.writeLocked(fr)
}

// Load returns the record for agentID.
func (f *FileStore) Load(_ context.Context, agentID string) (model.AgentRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fr, err := f.readLocked()
	if err != nil {
		return model.AgentRecord{}, false, err
	}
	rec, ok := fr.Agents[agentID]
	return rec, ok, nil
}

// List returns every record in the file.
func (f *FileStore) List(_ context.Context) ([]model.AgentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fr, err := f.readLocked()
	if err != nil {
		return nil, err
	}
	out := make([]model.AgentRecord, 0, len(fr.Agents))
	for _, rec := range fr.Agents {
		out = append(out, rec)
	}
	return out, nil
}
