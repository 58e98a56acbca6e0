package controlplane

import (
	"context"

	"github.com/subagentctl/subagentctl/agentreg"
	"github.com/subagentctl/subagentctl/budget"
	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/model"
	"github.com/subagentctl/subagentctl/router"
	"github.com/subagentctl/subagentctl/subagenterr"
)

// AgentSpawn creates a pending AgentRecord and publishes agent.invoked
// (spec §6 `agent_spawn`; spec §4.F data flow: "a caller publishes
// agent.invoked"). agentreg.Registry.Create itself stays a pure record
// insert, so the invoked-event side effect belongs here at the surface
// that represents "a caller" in spec §4.F's data-flow description.
func (cp *ControlPlane) AgentSpawn(ctx context.Context, agentType, modelName string, bdg model.Budget, sessionID, taskID string, metadata map[string]any) (model.AgentRecord, error) {
	rec, err := cp.Agents.Create(ctx, agentType, modelName, bdg, sessionID, taskID, metadata)
	if err != nil {
		return rec, err
	}
	cp.Bus.Publish(ctx, bus.NewEvent(bus.EventAgentInvoked, sessionID, map[string]any{
		"agent_id":   rec.AgentID,
		"agent_type": agentType,
		"model":      modelName,
		"task_id":    taskID,
	}))
	return rec, nil
}

// AgentList enumerates agents matching filter (spec §6 `agent_list`).
func (cp *ControlPlane) AgentList(ctx context.Context, filter agentreg.Filter) ([]model.AgentRecord, error) {
	return cp.Agents.List(ctx, filter)
}

// AgentShow loads one agent by ID (spec §6 `agent_show`).
func (cp *ControlPlane) AgentShow(ctx context.Context, agentID string) (model.AgentRecord, error) {
	rec, ok, err := cp.Agents.Get(ctx, agentID)
	if err != nil {
		return model.AgentRecord{}, err
	}
	if !ok {
		return model.AgentRecord{}, subagenterr.Newf(subagenterr.KindValidation, "agent %s not found", agentID)
	}
	return rec, nil
}

// AgentPause transitions agentID to paused (spec §6 `agent_pause`).
func (cp *ControlPlane) AgentPause(ctx context.Context, agentID string) (model.AgentRecord, error) {
	return cp.Agents.Pause(ctx, agentID)
}

// AgentResume transitions agentID back to running (spec §6 `agent_resume`).
func (cp *ControlPlane) AgentResume(ctx context.Context, agentID string) (model.AgentRecord, error) {
	return cp.Agents.Resume(ctx, agentID)
}

// AgentTerminate transitions agentID to terminated with reason (spec §6
// `agent_terminate`).
func (cp *ControlPlane) AgentTerminate(ctx context.Context, agentID, reason string) (model.AgentRecord, error) {
	return cp.Agents.Terminate(ctx, agentID, reason)
}

// AgentSwitchModel changes agentID's model and publishes model.selected
// (spec §6 `agent_switch_model`; §4.L names model.selected as the router
// subscriber's emission for agent.invoked, reused here since a manual
// switch is the same observable fact: "this agent now runs model X").
func (cp *ControlPlane) AgentSwitchModel(ctx context.Context, agentID, modelName, reason string) (model.AgentRecord, error) {
	rec, err := cp.Agents.Update(ctx, agentID, func(r *model.AgentRecord) {
		r.Model = modelName
	})
	if err != nil {
		return rec, err
	}
	tier, ok := cp.Router.TierOf(modelName)
	if !ok {
		tier = router.TierBase
	}
	cp.Bus.Publish(ctx, bus.NewEvent(bus.EventModelSelected, rec.SessionID, map[string]any{
		"agent_id": agentID,
		"model":    modelName,
		"reason":   reason,
		"tier":     string(tier),
	}))
	return rec, nil
}

// HeartbeatResult pairs the updated AgentRecord with the budget verdict
// recorded against it (spec §6 `agent_heartbeat`, §4.J).
type HeartbeatResult struct {
	Agent   model.AgentRecord
	Verdict budget.Verdict
}

// AgentHeartbeat records metrics, evaluates the budget enforcer (spec
// §4.J) against the refreshed record, and force-terminates the agent on
// any hard-severity breach, publishing agent.timeout for the two breaches
// the spec's error table names (heartbeat_timeout, sla_timeout) and
// leaving the others to ride the agent.failed Transition already emits.
func (cp *ControlPlane) AgentHeartbeat(ctx context.Context, agentID string, metrics model.Metrics) (HeartbeatResult, error) {
	prev, found, err := cp.Agents.Get(ctx, agentID)
	if err != nil {
		return HeartbeatResult{}, err
	}
	rec, err := cp.Agents.RecordHeartbeat(ctx, agentID, metrics)
	if err != nil {
		return HeartbeatResult{}, err
	}

	// RecordHeartbeat has just stamped LastHeartbeat with now, so the
	// heartbeat age is measured against the previous heartbeat.
	eval := rec
	if found {
		eval.LastHeartbeat = prev.LastHeartbeat
	}
	verdict := budget.Evaluate(eval, nowUTC(), rec.Metrics.CostUSD)
	if !verdict.Exceeded {
		return HeartbeatResult{Agent: rec, Verdict: verdict}, nil
	}

	reason := string(verdict.Reason)
	isTimeout := verdict.Reason == budget.ReasonHeartbeatTimeout || verdict.Reason == budget.ReasonSLATimeout
	terminated, err := cp.Agents.Transition(ctx, agentID, model.AgentTerminated, reason, "budget exceeded: "+reason)
	if err != nil {
		return HeartbeatResult{Agent: rec, Verdict: verdict}, err
	}
	if isTimeout {
		cp.Bus.Publish(ctx, bus.NewEvent(bus.EventAgentTimeout, terminated.SessionID, map[string]any{
			"agent_id": agentID,
			"reason":   reason,
		}))
	}
	return HeartbeatResult{Agent: terminated, Verdict: verdict}, nil
}
