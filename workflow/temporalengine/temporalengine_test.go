package temporalengine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func activityRegOpts(name string) activity.RegisterOptions {
	return activity.RegisterOptions{Name: name}
}

func TestAgentWorkflowRunsInDependencyOrder(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	var order []string
	env.RegisterActivityWithOptions(func(_ interface{}, in TaskExecutionInput) (any, error) {
		order = append(order, in.AgentID)
		return in.AgentID + "-result", nil
	}, activityRegOpts("RunTask_worker"))

	nodes := []graphNode{
		{AgentID: "a", AgentType: "worker"},
		{AgentID: "b", AgentType: "worker", DependsOn: []string{"a"}},
	}
	env.ExecuteWorkflow(AgentWorkflow, nodes)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.Equal(t, []string{"a", "b"}, order)
}

func TestAgentWorkflowCompletesWhenUpstreamTaskFails(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	env.RegisterActivityWithOptions(func(_ interface{}, in TaskExecutionInput) (any, error) {
		if in.AgentID == "a" {
			return nil, errors.New("boom")
		}
		return "ok", nil
	}, activityRegOpts("RunTask_worker"))

	nodes := []graphNode{
		{AgentID: "a", AgentType: "worker"},
		{AgentID: "b", AgentType: "worker", DependsOn: []string{"a"}},
	}
	env.ExecuteWorkflow(AgentWorkflow, nodes)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
}
