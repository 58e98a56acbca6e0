package permission

import (
	"context"
	"time"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/ident"
	"github.com/subagentctl/subagentctl/model"
)

// ApprovalStore persists ApprovalRecords (state/approvals.json per spec
// §6). It is intentionally minimal; package approval's Store is the
// file-backed implementation with atomic writes that the production wiring
// in package runtime plugs in.
type ApprovalStore interface {
	Save(ctx context.Context, rec model.ApprovalRecord) error
	Load(ctx context.Context, approvalID string) (model.ApprovalRecord, bool, error)
}

// Invoker runs the underlying tool once permission and approval checks
// pass. It must never panic; a raised error is treated as ToolExecutionError.
type Invoker func(ctx context.Context) (result any, err error)

// CallResult is the shape every ToolProxy call returns (spec §4.K: "the
// proxy never throws; it always returns {success, result?, error?}").
type CallResult struct {
	Success bool
	Result  any
	Error   string
}

// CallOptions describes one tool invocation to the proxy.
type CallOptions struct {
	Tool            string
	Operation       Operation
	FilePath        string
	Flags           Flags
	Profile         model.PermissionProfile
	AgentID         string
	SessionID       string
	Command         string
	PayloadBytes    int
	OutsideProject  bool
	// ApprovalID, if set and the referenced ApprovalRecord is granted,
	// bypasses the risk-score approval gate (spec §4.K step 3).
	ApprovalID string
	// Approved is an explicit caller-asserted bypass (e.g. an
	// interactive confirmation already obtained out of band).
	Approved bool
}

// Proxy wraps every tool invocation with permission validation, risk
// scoring, and approval gating (spec §4.K).
type Proxy struct {
	manager   *Manager
	approvals ApprovalStore
	b         bus.Bus

	ApprovalsEnabled    bool
	ApprovalThreshold   float64
}

// NewProxy constructs a Proxy. approvals may be nil if ApprovalsEnabled is
// false.
func NewProxy(manager *Manager, approvals ApprovalStore, b bus.Bus) *Proxy {
	return &Proxy{manager: manager, approvals: approvals, b: b, ApprovalThreshold: 0.7}
}

// Call validates, risk-scores, and (if it clears the gate) invokes fn,
// publishing tool.used either way.
func (p *Proxy) Call(ctx context.Context, opts CallOptions, fn Invoker) CallResult {
	start := time.Now()

	v := p.manager.Validate(opts.Tool, opts.Operation, opts.FilePath, opts.Flags, opts.Profile)
	if !v.Allowed {
		p.logToolUsed(ctx, opts, false, 0, "PermissionDenied")
		return CallResult{Success: false, Error: v.Reason}
	}

	score, reasons := RiskScore(RiskInput{
		Operation:       opts.Operation,
		FilePath:        opts.FilePath,
		ModifiesTests:   isTestFile(opts.FilePath) && opts.Operation.isMutating(),
		RequiresBash:    opts.Flags.RequiresBash,
		RequiresNetwork: opts.Flags.RequiresNetwork,
		Command:         opts.Command,
		PayloadBytes:    opts.PayloadBytes,
		OutsideProject:  opts.OutsideProject,
	})

	if p.ApprovalsEnabled && score >= p.ApprovalThreshold && !p.bypassed(ctx, opts) {
		rec := p.persistApproval(ctx, opts, score, reasons)
		if p.b != nil {
			p.b.Publish(ctx, bus.NewEvent(bus.EventApprovalRequired, opts.SessionID, map[string]any{
				"approval_id": rec.ApprovalID,
				"risk_score":  rec.RiskScore,
			}))
		}
		p.logToolUsed(ctx, opts, false, time.Since(start).Seconds(), "ApprovalRequired")
		return CallResult{Success: false, Error: "approval_required"}
	}

	result, err := fn(ctx)
	duration := time.Since(start).Seconds()
	if err != nil {
		p.logToolUsedWithError(ctx, opts, duration, "ToolExecutionError", err.Error())
		return CallResult{Success: false, Error: err.Error()}
	}
	p.logToolUsed(ctx, opts, true, duration, "")
	return CallResult{Success: true, Result: result}
}

func isTestFile(p string) bool { return IsTestPath(p) }

func (p *Proxy) bypassed(ctx context.Context, opts CallOptions) bool {
	if opts.Approved {
		return true
	}
	if opts.ApprovalID == "" || p.approvals == nil {
		return false
	}
	rec, ok, err := p.approvals.Load(ctx, opts.ApprovalID)
	if err != nil || !ok {
		return false
	}
	return rec.Status == model.ApprovalGranted
}

func (p *Proxy) persistApproval(ctx context.Context, opts CallOptions, score float64, reasons []RiskReason) model.ApprovalRecord {
	now := time.Now().UTC()
	reasonNames := make([]string, 0, len(reasons))
	for _, r := range reasons {
		reasonNames = append(reasonNames, r.Reason)
	}
	rec := model.ApprovalRecord{
		ApprovalID:      ident.New("appr"),
		Status:          model.ApprovalRequired,
		Tool:            opts.Tool,
		RiskScore:       score,
		Reasons:         reasonNames,
		Action:          string(opts.Operation),
		CreatedAt:       now,
		UpdatedAt:       now,
		FilePath:        opts.FilePath,
		Agent:           opts.AgentID,
		Profile:         opts.Profile.Name,
		RequiresNetwork: opts.Flags.RequiresNetwork,
		RequiresBash:    opts.Flags.RequiresBash,
		ModifiesTests:   isTestFile(opts.FilePath) && opts.Operation.isMutating(),
	}
	if p.approvals != nil {
		_ = p.approvals.Save(ctx, rec)
	}
	return rec
}

func (p *Proxy) logToolUsed(ctx context.Context, opts CallOptions, _ bool, durationSeconds float64, errorType string) {
	p.logToolUsedWithError(ctx, opts, durationSeconds, errorType, "")
}

func (p *Proxy) logToolUsedWithError(ctx context.Context, opts CallOptions, durationSeconds float64, errorType, errMsg string) {
	if p.b == nil {
		return
	}
	success := errorType == ""
	payload := map[string]any{
		"tool":             opts.Tool,
		"success":          success,
		"duration_seconds": durationSeconds,
		"agent_id":         opts.AgentID,
	}
	if errorType != "" {
		payload["error_type"] = errorType
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	p.b.Publish(ctx, bus.NewEvent(bus.EventToolUsed, opts.SessionID, payload))
	if errorType != "" {
		p.b.Publish(ctx, bus.NewEvent(bus.EventToolError, opts.SessionID, map[string]any{
			"tool":       opts.Tool,
			"error_type": errorType,
		}))
	}
}
