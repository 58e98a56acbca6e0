package quality

import (
	"context"
	"fmt"
	"strings"

	"github.com/subagentctl/subagentctl/permission"
)

// ProtectedTestsGate fails if any modified path looks like a protected test
// path while the active profile forbids modifying tests, grounded on
// gates.py's ProtectedTestsGate (detect_test_modifications / assert_tests_unmodified).
type ProtectedTestsGate struct {
	ModifiedPaths  []string
	CanModifyTests bool
}

// Name implements Gate.
func (g *ProtectedTestsGate) Name() string { return "protected_tests" }

// Run implements Gate.
func (g *ProtectedTestsGate) Run(context.Context) Result {
	if g.CanModifyTests {
		return Result{Name: g.Name(), Passed: true, Required: true}
	}

	var modified []string
	for _, p := range g.ModifiedPaths {
		if permission.IsTestPath(p) {
			modified = append(modified, p)
		}
	}
	if len(modified) > 0 {
		return Result{
			Name:     g.Name(),
			Passed:   false,
			Required: true,
			Message:  fmt.Sprintf("test modifications detected: %s", strings.Join(modified, ", ")),
			Details:  map[string]any{"modified_paths": modified},
		}
	}
	return Result{Name: g.Name(), Passed: true, Required: true}
}
