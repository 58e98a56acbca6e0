// Package temporalengine is an optional durable workflow.Engine backed by
// go.temporal.io/sdk, mirroring the teacher's engine/temporal adapter
// (runtime/agent/engine/temporal) scaled down to this module's single
// DAG-of-AgentTasks shape (spec §4.M, SPEC_FULL.md §4.M). Each AgentTask
// handler registered on the workflow.Workflow runs as a Temporal activity,
// so activity failures are retried per Temporal's policy before the task
// is marked failed; the deterministic workflow function itself only
// orchestrates readiness and fan-out, never calling handlers directly.
package temporalengine

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	wf "github.com/subagentctl/subagentctl/workflow"
)

// TaskExecutionInput is the activity payload for running one AgentTask.
type TaskExecutionInput struct {
	AgentID      string
	AgentType    string
	TaskSpec     map[string]any
	Dependencies map[string]any
}

// Registry resolves an agent_type to the wf.Handler that should run it.
// Activities are registered per agent_type at Engine construction time.
type Registry map[string]wf.Handler

// Engine runs a workflow.Workflow as a durable Temporal workflow
// execution. Task handlers run as Temporal activities under TaskQueue.
type Engine struct {
	Client    client.Client
	TaskQueue string
	Registry  Registry
}

// New constructs a temporalengine.Engine. c must already be connected; the
// caller owns its lifecycle (Close()).
func New(c client.Client, taskQueue string, registry Registry) *Engine {
	return &Engine{Client: c, TaskQueue: taskQueue, Registry: registry}
}

// Worker builds a Temporal worker.Worker with the AgentWorkflow and one
// activity per registered agent_type. Callers call Start()/Stop() on the
// returned worker themselves, matching the teacher's manual-lifecycle
// option (DisableWorkerAutoStart).
func (e *Engine) Worker() worker.Worker {
	w := worker.New(e.Client, e.TaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(AgentWorkflow, workflow.RegisterOptions{Name: "AgentWorkflow"})
	for agentType, handler := range e.Registry {
		w.RegisterActivityWithOptions(activityFor(handler), activity.RegisterOptions{Name: "RunTask_" + agentType})
	}
	return w
}

func activityFor(handler wf.Handler) func(context.Context, TaskExecutionInput) (any, error) {
	return func(ctx context.Context, in TaskExecutionInput) (any, error) {
		task := wf.AgentTask{AgentID: in.AgentID, AgentType: in.AgentType, TaskSpec: in.TaskSpec}
		return handler(ctx, task, wf.Context{Dependencies: in.Dependencies})
	}
}

// Run starts a Temporal workflow execution of w and blocks until it
// completes. w's own handlers field is not used by the Temporal path —
// the activities registered on Worker() are used instead, looked up by
// agent_type; callers must ensure Registry covers every agent_type present
// in w before calling Run.
func (e *Engine) Run(ctx context.Context, w *wf.Workflow) error {
	graph, err := marshalGraph(w)
	if err != nil {
		return fmt.Errorf("temporalengine: marshal graph: %w", err)
	}
	run, err := e.Client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "workflow-" + w.ID,
		TaskQueue: e.TaskQueue,
	}, AgentWorkflow, graph)
	if err != nil {
		return fmt.Errorf("temporalengine: start workflow: %w", err)
	}
	return run.Get(ctx, nil)
}

// graphNode is the replay-safe, serializable view of one AgentTask used
// inside AgentWorkflow (workflow.Context cannot close over *wf.Workflow
// directly since that type is not a plain value and carries a mutex).
type graphNode struct {
	AgentID   string
	AgentType string
	TaskSpec  map[string]any
	DependsOn []string
}

func marshalGraph(w *wf.Workflow) ([]graphNode, error) {
	nodes, err := w.Graph()
	if err != nil {
		return nil, err
	}
	out := make([]graphNode, 0, len(nodes))
	for _, t := range nodes {
		out = append(out, graphNode{AgentID: t.AgentID, AgentType: t.AgentType, TaskSpec: t.TaskSpec, DependsOn: t.DependsOn})
	}
	return out, nil
}

// AgentWorkflow is the deterministic Temporal workflow function: it
// repeatedly finds tasks whose dependencies are satisfied and schedules
// them as activities concurrently via workflow.Go + workflow.Selector,
// mirroring Workflow.Run's wave-by-wave loop but using Temporal's
// replay-safe primitives instead of goroutines/sync.WaitGroup.
func AgentWorkflow(ctx workflow.Context, nodes []graphNode) error {
	ao := workflow.ActivityOptions{StartToCloseTimeout: 5 * time.Minute}
	ctx = workflow.WithActivityOptions(ctx, ao)

	byID := make(map[string]graphNode, len(nodes))
	for _, n := range nodes {
		byID[n.AgentID] = n
	}
	status := make(map[string]wf.Status, len(nodes))
	results := make(map[string]any, len(nodes))
	for _, n := range nodes {
		status[n.AgentID] = wf.StatusPending
	}

	ready := func() []string {
		var out []string
		for _, n := range nodes {
			if status[n.AgentID] != wf.StatusPending {
				continue
			}
			allDone := true
			for _, dep := range n.DependsOn {
				if status[dep] != wf.StatusCompleted {
					allDone = false
					break
				}
			}
			if allDone {
				out = append(out, n.AgentID)
			}
		}
		return out
	}

	for {
		batch := ready()
		if len(batch) == 0 {
			break
		}
		selector := workflow.NewSelector(ctx)
		for _, id := range batch {
			id := id
			n := byID[id]
			status[id] = wf.StatusRunning
			deps := make(map[string]any, len(n.DependsOn))
			for _, d := range n.DependsOn {
				deps[d] = results[d]
			}
			future := workflow.ExecuteActivity(ctx, "RunTask_"+n.AgentType, TaskExecutionInput{
				AgentID: n.AgentID, AgentType: n.AgentType, TaskSpec: n.TaskSpec, Dependencies: deps,
			})
			selector.AddFuture(future, func(f workflow.Future) {
				var res any
				if err := f.Get(ctx, &res); err != nil {
					status[id] = wf.StatusFailed
					return
				}
				status[id] = wf.StatusCompleted
				results[id] = res
			})
		}
		for range batch {
			selector.Select(ctx)
		}
	}
	return nil
}
