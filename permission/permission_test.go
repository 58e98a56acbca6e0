package permission_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subagentctl/subagentctl/model"
	"github.com/subagentctl/subagentctl/permission"
)

func TestValidateEmptyPathsAllowedMeansAllowAll(t *testing.T) {
	m := permission.New("/project")
	profile := model.PermissionProfile{Name: "default"}
	res := m.Validate("read", permission.OpRead, "/project/anything/goes.go", permission.Flags{}, profile)
	assert.True(t, res.Allowed)
}

func TestValidateToolNotInAllowlist(t *testing.T) {
	m := permission.New("/project")
	profile := model.PermissionProfile{Name: "default", Tools: []string{"read"}, PathsAllowed: []string{"src/**"}}
	res := m.Validate("write", permission.OpWrite, "src/main.go", permission.Flags{}, profile)
	assert.False(t, res.Allowed)
}

func TestValidatePathsAllowedRestricts(t *testing.T) {
	m := permission.New("")
	profile := model.PermissionProfile{Name: "default", PathsAllowed: []string{"src/**"}}
	res := m.Validate("write", permission.OpWrite, "other/main.go", permission.Flags{}, profile)
	assert.False(t, res.Allowed)
}

func TestValidateForbidsTestPathWithoutCanModifyTests(t *testing.T) {
	m := permission.New("")
	profile := model.PermissionProfile{Name: "default", CanModifyTests: false}
	res := m.Validate("write", permission.OpWrite, "tests/foo_test.go", permission.Flags{}, profile)
	assert.False(t, res.Allowed)

	profile.CanModifyTests = true
	res = m.Validate("write", permission.OpWrite, "tests/foo_test.go", permission.Flags{}, profile)
	assert.True(t, res.Allowed)
}

func TestValidateBashAndNetworkFlags(t *testing.T) {
	m := permission.New("")
	profile := model.PermissionProfile{Name: "default"}
	res := m.Validate("shell", permission.OpRead, "", permission.Flags{RequiresBash: true}, profile)
	assert.False(t, res.Allowed)

	profile.CanRunBash = true
	res = m.Validate("shell", permission.OpRead, "", permission.Flags{RequiresBash: true}, profile)
	assert.True(t, res.Allowed)
}

func TestRiskScoreClampsAtOne(t *testing.T) {
	score, reasons := permission.RiskScore(permission.RiskInput{
		Operation:       permission.OpDelete,
		ModifiesTests:   true,
		RequiresBash:    true,
		RequiresNetwork: true,
		Command:         "sudo rm -rf /",
		PayloadBytes:    20000,
		OutsideProject:  true,
		FilePath:        ".env",
	})
	assert.Equal(t, 1.0, score)
	assert.NotEmpty(t, reasons)
}

func TestRiskScoreDeleteOperation(t *testing.T) {
	score, reasons := permission.RiskScore(permission.RiskInput{
		Operation: permission.OpDelete,
		FilePath:  "src/main.go",
	})
	assert.GreaterOrEqual(t, score, 0.5)
	found := false
	for _, r := range reasons {
		if r.Reason == "delete_operation" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestProxyDeniesUnauthorizedTool(t *testing.T) {
	m := permission.New("/proj")
	proxy := permission.NewProxy(m, permission.NewInmemApprovalStore(), nil)
	profile := model.PermissionProfile{Name: "default", Tools: []string{"read"}, PathsAllowed: []string{"src/**"}}

	result := proxy.Call(context.Background(), permission.CallOptions{
		Tool:      "write",
		Operation: permission.OpWrite,
		FilePath:  "src/main.go",
		Profile:   profile,
	}, func(context.Context) (any, error) { return "ran", nil })

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "tool:write")
}

func TestProxyRequiresApprovalAboveThreshold(t *testing.T) {
	m := permission.New("/proj")
	store := permission.NewInmemApprovalStore()
	proxy := permission.NewProxy(m, store, nil)
	proxy.ApprovalsEnabled = true
	proxy.ApprovalThreshold = 0.5

	profile := model.PermissionProfile{Name: "default"}
	result := proxy.Call(context.Background(), permission.CallOptions{
		Tool:      "delete",
		Operation: permission.OpDelete,
		FilePath:  "src/main.go",
		Profile:   profile,
	}, func(context.Context) (any, error) { return "ran", nil })

	assert.False(t, result.Success)
	assert.Equal(t, "approval_required", result.Error)
}

func TestProxyRunsToolWhenBelowThreshold(t *testing.T) {
	m := permission.New("/proj")
	proxy := permission.NewProxy(m, permission.NewInmemApprovalStore(), nil)
	proxy.ApprovalsEnabled = true
	proxy.ApprovalThreshold = 0.9

	profile := model.PermissionProfile{Name: "default"}
	ran := false
	result := proxy.Call(context.Background(), permission.CallOptions{
		Tool:      "read",
		Operation: permission.OpRead,
		FilePath:  "src/main.go",
		Profile:   profile,
	}, func(context.Context) (any, error) { ran = true; return "ok", nil })

	require.True(t, ran)
	assert.True(t, result.Success)
	assert.Equal(t, "ok", result.Result)
}
