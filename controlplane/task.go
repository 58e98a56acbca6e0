package controlplane

import (
	"context"

	"github.com/subagentctl/subagentctl/model"
	"github.com/subagentctl/subagentctl/subagenterr"
)

// TaskCreate records a new task (spec §6 `task_create`).
func (cp *ControlPlane) TaskCreate(ctx context.Context, sessionID, title, description string, priority int, acceptanceCriteria, taskContext []string) (model.TaskRecord, error) {
	return cp.Tasks.Create(ctx, sessionID, title, description, priority, acceptanceCriteria, taskContext)
}

// TaskList enumerates every persisted task (spec §6 `task_list`).
func (cp *ControlPlane) TaskList() ([]model.TaskRecord, error) {
	return cp.Tasks.List()
}

// TaskShow loads one task by ID (spec §6 `task_show`), returning a
// validation error if it does not exist.
func (cp *ControlPlane) TaskShow(id string) (model.TaskRecord, error) {
	rec, ok, err := cp.Tasks.Get(id)
	if err != nil {
		return model.TaskRecord{}, err
	}
	if !ok {
		return model.TaskRecord{}, subagenterr.Newf(subagenterr.KindValidation, "task %s not found", id)
	}
	return rec, nil
}

// TaskUpdateFields is the set of mutable TaskRecord fields `task_update`
// may change; a zero-value field (empty string, nil slice, zero
// priority) leaves that field untouched.
type TaskUpdateFields struct {
	Status             model.TaskStatus
	Priority           *int
	AcceptanceCriteria []string
	Context            []string
	Metadata           map[string]any
}

// TaskUpdate applies fields to id and, when Status changes, publishes
// task.stage_changed via task.Store.Update (spec §6 `task_update`).
func (cp *ControlPlane) TaskUpdate(ctx context.Context, sessionID, id string, fields TaskUpdateFields) (model.TaskRecord, error) {
	return cp.Tasks.Update(ctx, sessionID, id, func(rec *model.TaskRecord) {
		if fields.Status != "" {
			rec.Status = fields.Status
		}
		if fields.Priority != nil {
			rec.Priority = *fields.Priority
		}
		if fields.AcceptanceCriteria != nil {
			rec.AcceptanceCriteria = fields.AcceptanceCriteria
		}
		if fields.Context != nil {
			rec.Context = fields.Context
		}
		if fields.Metadata != nil {
			rec.Metadata = fields.Metadata
		}
	})
}

// TaskComplete marks id completed (spec §6 `task_complete`).
func (cp *ControlPlane) TaskComplete(ctx context.Context, sessionID, id string) (model.TaskRecord, error) {
	return cp.Tasks.Complete(ctx, sessionID, id)
}
