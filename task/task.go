// Package task persists TaskRecords (spec §3, §6: tasks/tasks.json) and
// publishes task.started/stage_changed/completed, grounded on session.Store's
// single-file-plus-pointer layout adapted to a flat collection.
package task

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

// Task lifecycle stages (spec §3). "in_progress" is the stage recorded by
// task.stage_changed; task.started/task.completed cover the pending and
// terminal edges.
const (
	StatusPending    model.TaskStatus = "pending"
	StatusInProgress model.TaskStatus = "in_progress"
	StatusCompleted  model.TaskStatus = "completed"
)

// Store persists every TaskRecord in a single JSON file
// (tasks/tasks.json), written atomically via temp-then-rename.
type Store struct {
	mu   sync.Mutex
	path string
	b    bus.Bus
}

// New constructs a Store backed by path (typically
// filepath.Join(cfg.DataDir, "tasks", "tasks.json")).
func New(path string, b bus.Bus) *Store {
	return &Store{path: path, b: b}
}

type fileRecords struct {
	Tasks map[string]model.TaskRecord `json:"tasks"`
}

func (s *Store) readLocked() (fileRecords, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileRecords{Tasks: make(map[string]model.TaskRecord)}, nil
		}
		return fileRecords{}, err
	}
	var fr fileRecords
	if err := json.Unmarshal(data, &fr); err != nil {
		return fileRecords{}, fmt.Errorf("task: parse %s: %w", s.path, err)
	}
	if fr.Tasks == nil {
		fr.Tasks = make(map[string]model.TaskRecord)
	}
	return fr, nil
}

func (s *Store) writeLocked(fr fileRecords) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("task: mkdir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(fr, "", "  ")
	if err != nil {
		return fmt.Errorf("task: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tasks-*.json")
	if err != nil {
		return fmt.Errorf("task: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("task: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("task: rename into %s: %w", s.path, err)
	}
	return nil
}

// Create inserts a new pending TaskRecord and publishes task.started.
func (s *Store) Create(ctx context.Context, sessionID, title, description string, priority int, acceptanceCriteria, taskContext []string) (model.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := model.TaskRecord{
		ID:                 ident.New("task"),
		Title:              title,
		Description:        description,
		Priority:           priority,
		AcceptanceCriteria: acceptanceCriteria,
		Context:            taskContext,
		Status:             StatusPending,
		CreatedAt:          time.Now().UTC(),
	}
	fr, err := s.readLocked()
	if err != nil {
		return model.TaskRecord{}, err
	}
	fr.Tasks[rec.ID] = rec
	if err := s.writeLocked(fr); err != nil {
		return model.TaskRecord{}, err
	}
	if s.b != nil {
		s.b.Publish(ctx, bus.NewEvent(bus.EventTaskStarted, sessionID, map[string]any{
			"task_id": rec.ID, "title": rec.Title,
		}))
	}
	return rec, nil
}

// Get loads one record by ID.
func (s *Store) Get(id string) (model.TaskRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, err := s.readLocked()
	if err != nil {
		return model.TaskRecord{}, false, err
	}
	rec, ok := fr.Tasks[id]
	return rec, ok, nil
}

// List returns every persisted task.
func (s *Store) List() ([]model.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	out := make([]model.TaskRecord, 0, len(fr.Tasks))
	for _, rec := range fr.Tasks {
		out = append(out, rec)
	}
	return out, nil
}

// Update applies fn to id's record and persists the result, publishing
// task.stage_changed when fn changes Status to something other than
// "completed" (task.completed handles that edge separately via Complete).
func (s *Store) Update(ctx context.Context, sessionID, id string, fn func(*model.TaskRecord)) (model.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fr, err := s.readLocked()
	if err != nil {
		return model.TaskRecord{}, err
	}
	rec, ok := fr.Tasks[id]
	if !ok {
		return model.TaskRecord{}, fmt.Errorf("task: %s: %w", id, errNotFound)
	}
	prevStatus := rec.Status
	fn(&rec)
	fr.Tasks[id] = rec
	if err := s.writeLocked(fr); err != nil {
		return model.TaskRecord{}, err
	}
	if s.b != nil && rec.Status != prevStatus && rec.Status != StatusCompleted {
		s.b.Publish(ctx, bus.NewEvent(bus.EventTaskStageChanged, sessionID, map[string]any{
			"task_id": id, "status": string(rec.Status),
		}))
	}
	return rec, nil
}

// Complete marks id completed, stamps CompletedAt, and publishes
// task.completed.
func (s *Store) Complete(ctx context.Context, sessionID, id string) (model.TaskRecord, error) {
	s.mu.Lock()
	fr, err := s.readLocked()
	if err != nil {
		s.mu.Unlock()
		return model.TaskRecord{}, err
	}
	rec, ok := fr.Tasks[id]
	if !ok {
		s.mu.Unlock()
		return model.TaskRecord{}, fmt.Errorf("task: %s: %w", id, errNotFound)
	}
	now := time.Now().UTC()
	rec.Status = StatusCompleted
	rec.CompletedAt = &now
	fr.Tasks[id] = rec
	err = s.writeLocked(fr)
	s.mu.Unlock()
	if err != nil {
		return model.TaskRecord{}, err
	}
	if s.b != nil {
		s.b.Publish(ctx, bus.NewEvent(bus.EventTaskCompleted, sessionID, map[string]any{
			"task_id": id,
		}))
	}
	return rec, nil
}

var errNotFound = fmt.Errorf("task record not found")
