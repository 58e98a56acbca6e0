// Package trigger implements the Snapshot Trigger and Reference-Check
// Trigger subscribers (spec §4.E/§4.F), merged here because they are
// structurally identical: an agent-count/token-count counter pair that
// invokes a side-effecting action and publishes a *.triggered/*.created
// event pair once a threshold fires (SPEC_FULL.md §4.E/§4.F).
package trigger

import (
	"context"
	"strconv"
	"sync"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/telemetry"
)

// counters tracks the shared agent-count/token-count bookkeeping both
// trigger subscribers need.
type counters struct {
	mu              sync.Mutex
	agentCount      int
	lastTriggeredAt int
	tokenCount      int
}

func (c *counters) onAgentInvoked() (agentCount, sinceLast int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentCount++
	return c.agentCount, c.agentCount - c.lastTriggeredAt
}

func (c *counters) markTriggered() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTriggeredAt = c.agentCount
}

func (c *counters) addTokens(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenCount += n
	return c.tokenCount
}

// SnapshotAction is invoked by SnapshotTrigger when a trigger condition
// fires; callers bind this to snapshot.Manager.Create (spec §4.E:
// "invoke the snapshot manager"). Snapshot creation runs off the bus
// thread, so SnapshotTrigger calls Action in its own goroutine.
type SnapshotAction func(ctx context.Context, reason string) error

// SnapshotTrigger fires a snapshot every N agent invocations, or
// immediately on a session.token_warning with percent >= 70 (spec §4.E).
type SnapshotTrigger struct {
	every  int
	action SnapshotAction
	b      bus.Bus
	log    telemetry.Logger
	counters
}

// NewSnapshotTrigger constructs a SnapshotTrigger. every defaults to 10
// (spec §4.E default N).
func NewSnapshotTrigger(every int, action SnapshotAction, b bus.Bus, log telemetry.Logger) *SnapshotTrigger {
	if every <= 0 {
		every = 10
	}
	if log == nil {
		log = telemetry.NoopLogger{}
	}
	return &SnapshotTrigger{every: every, action: action, b: b, log: log}
}

// HandleEvent implements bus.Handler.
func (t *SnapshotTrigger) HandleEvent(ctx context.Context, e bus.Event) error {
	switch e.Type() {
	case bus.EventAgentInvoked:
		_, sinceLast := t.onAgentInvoked()
		if sinceLast >= t.every {
			t.fire(ctx, e.SessionID(), "agent_count_threshold")
		}
	case bus.EventSessionTokenWarning:
		if pct := intPayload(e, "percent"); pct >= 70 {
			t.fire(ctx, e.SessionID(), "token_limit_"+strconv.Itoa(pct))
		}
	}
	return nil
}

func (t *SnapshotTrigger) fire(ctx context.Context, sessionID, reason string) {
	t.markTriggered()
	go func() {
		if err := t.action(ctx, reason); err != nil {
			t.log.Warn(ctx, "trigger: snapshot action failed", "reason", reason, "error", err.Error())
			t.publish(ctx, bus.EventSnapshotFailed, sessionID, reason, err)
			return
		}
		t.publish(ctx, bus.EventSnapshotCreated, sessionID, reason, nil)
	}()
}

func (t *SnapshotTrigger) publish(ctx context.Context, eventType bus.EventType, sessionID, reason string, actionErr error) {
	if t.b == nil {
		return
	}
	payload := map[string]any{"reason": reason}
	if actionErr != nil {
		payload["error"] = actionErr.Error()
	}
	t.b.Publish(ctx, bus.NewEvent(eventType, sessionID, payload))
}

func intPayload(e bus.Event, key string) int {
	v, ok := e.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
