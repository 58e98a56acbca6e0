package controlplane

import (
	"context"

	"github.com/subagentctl/subagentctl/model"
)

// ApprovalsList enumerates approvals, optionally restricted to those still
// pending (spec §6 `approvals_list`).
func (cp *ControlPlane) ApprovalsList(pendingOnly bool) ([]model.ApprovalRecord, error) {
	return cp.Approvals.List(pendingOnly)
}

// ApprovalsDecide grants or denies approvalID (spec §6 `approvals_decide`).
func (cp *ControlPlane) ApprovalsDecide(ctx context.Context, sessionID, approvalID string, grant bool) (model.ApprovalRecord, error) {
	return cp.Approvals.Decide(ctx, sessionID, approvalID, grant)
}
