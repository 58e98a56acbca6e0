package quality_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/quality"
)

type fakeGate struct {
	name     string
	passed   bool
	required bool
}

func (g *fakeGate) Name() string { return g.name }
func (g *fakeGate) Run(context.Context) quality.Result {
	return quality.Result{Name: g.name, Passed: g.passed, Required: g.required}
}

func TestProtectedTestsGatePassesWhenNoTestPathModified(t *testing.T) {
	g := &quality.ProtectedTestsGate{ModifiedPaths: []string{"src/main.go", "README.md"}}
	res := g.Run(context.Background())
	assert.True(t, res.Passed)
}

func TestProtectedTestsGateFailsWhenTestPathModifiedAndForbidden(t *testing.T) {
	g := &quality.ProtectedTestsGate{ModifiedPaths: []string{"tests/test_foo.go"}, CanModifyTests: false}
	res := g.Run(context.Background())
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "tests/test_foo.go")
}

func TestProtectedTestsGateAllowsWhenCanModifyTests(t *testing.T) {
	g := &quality.ProtectedTestsGate{ModifiedPaths: []string{"tests/test_foo.go"}, CanModifyTests: true}
	res := g.Run(context.Background())
	assert.True(t, res.Passed)
}

func TestSecretScanGateDetectsHardcodedSecret(t *testing.T) {
	g := &quality.SecretScanGate{Files: map[string]string{
		"config.py": "x = 1\npassword = \"hunter2\"\n",
	}}
	res := g.Run(context.Background())
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "1 file")
}

func TestSecretScanGatePassesOnCleanFiles(t *testing.T) {
	g := &quality.SecretScanGate{Files: map[string]string{
		"main.go": "func main() {}\n",
	}}
	res := g.Run(context.Background())
	assert.True(t, res.Passed)
}

func TestRunnerPublishesStartedAndCompletedWithAggregatePassFalseOnRequiredFailure(t *testing.T) {
	b := bus.New()
	started := make(chan bus.Event, 1)
	completed := make(chan bus.Event, 1)
	b.Subscribe(bus.EventTestRunStarted, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		started <- e
		return nil
	}), bus.NonBlocking)
	b.Subscribe(bus.EventTestRunCompleted, bus.HandlerFunc(func(_ context.Context, e bus.Event) error {
		completed <- e
		return nil
	}), bus.NonBlocking)

	r := quality.New(b, nil,
		&fakeGate{name: "ok", passed: true, required: true},
		&fakeGate{name: "bad", passed: false, required: true},
	)
	summary := r.Run(context.Background(), "s1")
	require.False(t, summary.Passed)
	require.Len(t, summary.Results, 2)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("expected test.run_started event")
	}
	select {
	case e := <-completed:
		v, _ := e.Get("passed")
		assert.Equal(t, false, v)
	case <-time.After(time.Second):
		t.Fatal("expected test.run_completed event")
	}
}

func TestRunnerAggregatePassTrueWhenOptionalGateFails(t *testing.T) {
	r := quality.New(nil, nil,
		&fakeGate{name: "ok", passed: true, required: true},
		&fakeGate{name: "optional", passed: false, required: false},
	)
	summary := r.Run(context.Background(), "s1")
	assert.True(t, summary.Passed)
}
