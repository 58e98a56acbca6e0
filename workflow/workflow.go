// Package workflow implements the dependency-driven parallel coordinator
// from spec §4.M: a DAG of AgentTasks, validated acyclic at creation time,
// executed wave-by-wave as dependencies complete.
package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/subagentctl/subagentctl/bus"
)

// Phase names where in the scout/plan/build pipeline a task sits.
type Phase string

const (
	PhaseScout Phase = "scout"
	PhasePlan  Phase = "plan"
	PhaseBuild Phase = "build"
)

// Status is the lifecycle state of one AgentTask within a workflow.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// AgentTask is one node in the workflow DAG (spec §4.M).
type AgentTask struct {
	AgentID   string
	AgentType string
	Phase     Phase
	TaskSpec  map[string]any
	DependsOn []string

	status Status
	result any
	err    error
}

// Context is passed to every task Handler; Dependencies maps each
// completed dependency's AgentID to its result (spec §4.M step 2).
type Context struct {
	Dependencies map[string]any
}

// Handler executes one AgentTask given its TaskSpec and dependency
// Context. Handlers are registered per agent_type.
type Handler func(ctx context.Context, task AgentTask, wfCtx Context) (any, error)

// Workflow is a validated DAG of AgentTasks ready for execution.
type Workflow struct {
	ID       string
	tasks    map[string]*AgentTask
	order    []string // insertion order, for deterministic iteration
	handlers map[string]Handler
	b        bus.Bus

	mu sync.Mutex
}

// New validates tasks for existing dependencies and acyclicity (spec §4.M,
// invariants 7-8) and constructs a Workflow. workflowID becomes the
// trace_id on every emitted event.
func New(workflowID string, tasks []AgentTask, handlers map[string]Handler, b bus.Bus) (*Workflow, error) {
	wf := &Workflow{
		ID:       workflowID,
		tasks:    make(map[string]*AgentTask, len(tasks)),
		handlers: handlers,
		b:        b,
	}
	for i := range tasks {
		t := tasks[i]
		t.status = StatusPending
		wf.tasks[t.AgentID] = &t
		wf.order = append(wf.order, t.AgentID)
	}
	for _, t := range wf.tasks {
		for _, dep := range t.DependsOn {
			if _, ok := wf.tasks[dep]; !ok {
				return nil, fmt.Errorf("workflow: task %s depends on unknown task %s", t.AgentID, dep)
			}
		}
	}
	if cycle := findCycle(wf.tasks); cycle != "" {
		return nil, fmt.Errorf("workflow: dependency cycle detected at %s", cycle)
	}
	return wf, nil
}

// findCycle runs DFS over the dependency graph; any back-edge is a cycle
// (spec §4.M step: "validates... that the graph is acyclic (DFS; any
// back-edge is an error)"). Returns the AgentID where a cycle was
// detected, or "" if none.
func findCycle(tasks map[string]*AgentTask) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))
	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		for _, dep := range tasks[id].DependsOn {
			switch color[dep] {
			case gray:
				return id
			case white:
				if cyc := visit(dep); cyc != "" {
					return cyc
				}
			}
		}
		color[id] = black
		return ""
	}
	for id := range tasks {
		if color[id] == white {
			if cyc := visit(id); cyc != "" {
				return cyc
			}
		}
	}
	return ""
}

// Run executes the workflow to completion: repeatedly collects tasks whose
// dependencies are all completed, runs them concurrently, and repeats
// until no pending tasks remain ready (spec §4.M execution loop,
// invariant 7). If dependencies never become ready (an upstream failure),
// Run returns once no further progress is possible; remaining tasks stay
// pending, matching the spec's "workflow is stuck" exit condition.
func (wf *Workflow) Run(ctx context.Context) error {
	wf.publish(ctx, bus.EventWorkflowStarted, nil)

	for {
		ready := wf.readyTasks()
		if len(ready) == 0 {
			break
		}
		var wg sync.WaitGroup
		for _, id := range ready {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				wf.runTask(ctx, id)
			}(id)
		}
		wg.Wait()
	}

	wf.publish(ctx, bus.EventWorkflowCompleted, nil)
	return nil
}

func (wf *Workflow) readyTasks() []string {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	var ready []string
	for _, id := range wf.order {
		t := wf.tasks[id]
		if t.status != StatusPending {
			continue
		}
		if wf.dependenciesCompletedLocked(t) {
			t.status = StatusRunning
			ready = append(ready, id)
		}
	}
	return ready
}

func (wf *Workflow) dependenciesCompletedLocked(t *AgentTask) bool {
	for _, dep := range t.DependsOn {
		if wf.tasks[dep].status != StatusCompleted {
			return false
		}
	}
	return true
}

func (wf *Workflow) runTask(ctx context.Context, id string) {
	wf.mu.Lock()
	t := *wf.tasks[id]
	wf.mu.Unlock()

	handler := wf.handlers[t.AgentType]
	wf.publish(ctx, bus.EventAgentInvoked, map[string]any{"agent_id": t.AgentID, "agent_type": t.AgentType})

	if handler == nil {
		wf.finish(ctx, id, nil, fmt.Errorf("workflow: no handler registered for agent_type %q", t.AgentType))
		return
	}

	result, err := handler(ctx, t, Context{Dependencies: wf.dependencyResults(t)})
	wf.finish(ctx, id, result, err)
}

func (wf *Workflow) dependencyResults(t AgentTask) map[string]any {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	out := make(map[string]any, len(t.DependsOn))
	for _, dep := range t.DependsOn {
		out[dep] = wf.tasks[dep].result
	}
	return out
}

func (wf *Workflow) finish(ctx context.Context, id string, result any, err error) {
	wf.mu.Lock()
	t := wf.tasks[id]
	t.result = result
	t.err = err
	if err != nil {
		t.status = StatusFailed
	} else {
		t.status = StatusCompleted
	}
	wf.mu.Unlock()

	if err != nil {
		wf.publish(ctx, bus.EventAgentFailed, map[string]any{"agent_id": id, "error": err.Error()})
		return
	}
	wf.publish(ctx, bus.EventAgentCompleted, map[string]any{"agent_id": id})
}

func (wf *Workflow) publish(ctx context.Context, eventType bus.EventType, extra map[string]any) {
	if wf.b == nil {
		return
	}
	payload := map[string]any{"workflow_id": wf.ID}
	for k, v := range extra {
		payload[k] = v
	}
	wf.b.Publish(ctx, bus.NewEvent(eventType, wf.ID, payload, bus.WithTraceID(wf.ID)))
}

// Graph returns the task list in deterministic insertion order, exposing
// only the static shape (AgentID/AgentType/TaskSpec/DependsOn) needed by
// external engines such as temporalengine that must serialize the DAG
// into a replay-safe workflow argument rather than sharing this Workflow's
// internal mutex-guarded state directly.
func (wf *Workflow) Graph() ([]AgentTask, error) {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	out := make([]AgentTask, 0, len(wf.order))
	for _, id := range wf.order {
		t := *wf.tasks[id]
		t.status = ""
		t.result = nil
		t.err = nil
		out = append(out, t)
	}
	return out, nil
}

// Status returns the current status of one task.
func (wf *Workflow) Status(agentID string) (Status, bool) {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	t, ok := wf.tasks[agentID]
	if !ok {
		return "", false
	}
	return t.status, true
}

// Result returns the stored result/error for a completed or failed task.
func (wf *Workflow) Result(agentID string) (any, error, bool) {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	t, ok := wf.tasks[agentID]
	if !ok {
		return nil, nil, false
	}
	return t.result, t.err, true
}
