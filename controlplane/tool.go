package controlplane

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/subagentctl/subagentctl/model"
	"github.com/subagentctl/subagentctl/permission"
)

// ToolCheckResult is the `tool_check` operation's result (spec §6): the
// pure permission.Validate outcome, with no filesystem access and no risk
// scoring.
type ToolCheckResult struct {
	Allowed bool
	Reason  string
}

// ToolCheck validates a prospective tool call against profile without
// touching the filesystem or computing a risk score (spec §6
// `tool_check`).
func (cp *ControlPlane) ToolCheck(tool string, op permission.Operation, filePath string, flags permission.Flags, profile model.PermissionProfile) ToolCheckResult {
	res := cp.Permission.Validate(tool, op, filePath, flags, profile)
	return ToolCheckResult{Allowed: res.Allowed, Reason: res.Reason}
}

// ToolSimulateResult is the `tool_simulate` operation's result: the
// permission outcome plus the risk score a real call would carry, without
// invoking the tool or persisting an approval.
type ToolSimulateResult struct {
	Allowed           bool
	Reason            string
	RiskScore         float64
	Reasons           []permission.RiskReason
	WouldNeedApproval bool
}

// ToolSimulate dry-runs opts through Validate and RiskScore (spec §6
// `tool_simulate`).
func (cp *ControlPlane) ToolSimulate(opts permission.CallOptions) ToolSimulateResult {
	v := cp.Permission.Validate(opts.Tool, opts.Operation, opts.FilePath, opts.Flags, opts.Profile)
	if !v.Allowed {
		return ToolSimulateResult{Allowed: false, Reason: v.Reason}
	}
	score, reasons := permission.RiskScore(permission.RiskInput{
		Operation:       opts.Operation,
		FilePath:        opts.FilePath,
		ModifiesTests:   modifiesTests(opts),
		RequiresBash:    opts.Flags.RequiresBash,
		RequiresNetwork: opts.Flags.RequiresNetwork,
		Command:         opts.Command,
		PayloadBytes:    opts.PayloadBytes,
		OutsideProject:  opts.OutsideProject,
	})
	return ToolSimulateResult{
		Allowed:           true,
		RiskScore:         score,
		Reasons:           reasons,
		WouldNeedApproval: cp.Proxy.ApprovalsEnabled && score >= cp.Proxy.ApprovalThreshold,
	}
}

func modifiesTests(opts permission.CallOptions) bool {
	if !permission.IsTestPath(opts.FilePath) {
		return false
	}
	switch opts.Operation {
	case permission.OpWrite, permission.OpEdit, permission.OpDelete:
		return true
	default:
		return false
	}
}

// ToolRead reads opts.FilePath through the permission proxy (spec §6
// `tool_read`).
func (cp *ControlPlane) ToolRead(ctx context.Context, opts permission.CallOptions) permission.CallResult {
	opts.Operation = permission.OpRead
	return cp.Proxy.Call(ctx, opts, func(context.Context) (any, error) {
		data, err := os.ReadFile(opts.FilePath)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	})
}

// ToolWrite overwrites opts.FilePath with content through the permission
// proxy (spec §6 `tool_write`).
func (cp *ControlPlane) ToolWrite(ctx context.Context, opts permission.CallOptions, content string) permission.CallResult {
	opts.Operation = permission.OpWrite
	opts.PayloadBytes = len(content)
	return cp.Proxy.Call(ctx, opts, func(context.Context) (any, error) {
		return nil, os.WriteFile(opts.FilePath, []byte(content), 0o644)
	})
}

// ToolEdit replaces the first occurrence of oldText with newText in
// opts.FilePath through the permission proxy (spec §6 `tool_edit`).
func (cp *ControlPlane) ToolEdit(ctx context.Context, opts permission.CallOptions, oldText, newText string) permission.CallResult {
	opts.Operation = permission.OpEdit
	return cp.Proxy.Call(ctx, opts, func(context.Context) (any, error) {
		data, err := os.ReadFile(opts.FilePath)
		if err != nil {
			return nil, err
		}
		updated := strings.Replace(string(data), oldText, newText, 1)
		if updated == string(data) {
			return nil, fmt.Errorf("controlplane: old text not found in %s", opts.FilePath)
		}
		return nil, os.WriteFile(opts.FilePath, []byte(updated), 0o644)
	})
}
