package bus

// The closed event-type registry (spec §6). Every subscriber and the schema
// registry (package schema) key off these constants rather than free-form
// strings.
const (
	EventAgentInvoked  EventType = "agent.invoked"
	EventAgentCompleted EventType = "agent.completed"
	EventAgentFailed   EventType = "agent.failed"
	EventAgentTimeout  EventType = "agent.timeout"
	EventAgentHandoff  EventType = "agent.handoff"
	EventAgentBlocked  EventType = "agent.blocked"

	EventToolUsed          EventType = "tool.used"
	EventToolError         EventType = "tool.error"
	EventToolPerformance   EventType = "tool.performance"
	EventToolQuotaExceeded EventType = "tool.quota_exceeded"

	EventSnapshotCreated  EventType = "snapshot.created"
	EventSnapshotRestored EventType = "snapshot.restored"
	EventSnapshotFailed   EventType = "snapshot.failed"
	EventSnapshotCleanup  EventType = "snapshot.cleanup"

	EventSessionStarted        EventType = "session.started"
	EventSessionTokenWarning   EventType = "session.token_warning"
	EventSessionHandoffRequired EventType = "session.handoff_required"
	EventSessionEnded          EventType = "session.ended"

	EventCostTracked               EventType = "cost.tracked"
	EventCostBudgetWarning         EventType = "cost.budget_warning"
	EventCostOptimizationOpportunity EventType = "cost.optimization_opportunity"

	EventWorkflowStarted   EventType = "workflow.started"
	EventWorkflowCompleted EventType = "workflow.completed"

	EventTaskStarted      EventType = "task.started"
	EventTaskStageChanged EventType = "task.stage_changed"
	EventTaskCompleted    EventType = "task.completed"

	EventTestRunStarted   EventType = "test.run_started"
	EventTestRunCompleted EventType = "test.run_completed"

	EventApprovalRequired EventType = "approval.required"
	EventApprovalDecided  EventType = "approval.decided"
	EventApprovalGranted  EventType = "approval.granted"
	EventApprovalDenied   EventType = "approval.denied"

	EventReferenceCheckTriggered EventType = "reference_check.triggered"
	EventReferenceCheckCompleted EventType = "reference_check.completed"

	EventModelSelected    EventType = "model.selected"
	EventModelTierUpgrade EventType = "model.tier_upgrade"
)

// WildcardEventType subscribes a handler to every event type, used by the
// log writer subscriber (spec §4.C) and the metrics aggregator (spec §4.N).
const WildcardEventType EventType = "*"
