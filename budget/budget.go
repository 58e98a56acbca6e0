// Package budget implements the budget enforcer from spec §4.J: a pure
// function over an AgentRecord that detects token/time/cost/heartbeat/SLA
// breaches. It does not mutate any state — the caller (a monitor loop or
// the heartbeat handler) applies the resulting verdict via agentreg.
package budget

import (
	"time"

	"github.com/subagentctl/subagentctl/model"
)

// Severity classifies an Alert per spec §4.J.
type Severity string

const (
	// SeverityHard alerts force agent termination.
	SeverityHard Severity = "hard"
	// SeveritySoft alerts only notify; the agent keeps running.
	SeveritySoft Severity = "soft"
)

// Reason names the specific limit an Alert reports.
type Reason string

const (
	ReasonTokenLimit        Reason = "token_limit"
	ReasonTimeLimit         Reason = "time_limit"
	ReasonCostLimit         Reason = "cost_limit"
	ReasonHeartbeatTimeout  Reason = "heartbeat_timeout"
	ReasonSLATimeout        Reason = "sla_timeout"
	ReasonHeartbeatInterval Reason = "heartbeat_interval"
	// ReasonMultipleLimits is reported in place of a single Reason when
	// more than one hard alert fires simultaneously (spec §4.J tie-break).
	ReasonMultipleLimits Reason = "multiple_limits"
)

// Alert is one breached (or warned-of) limit.
type Alert struct {
	Severity Severity
	Reason   Reason
	Limit    float64
	Observed float64
}

// Verdict is the result of Evaluate. Exceeded is true only when at least
// one Hard alert fired; Reason then names it (or "multiple_limits" when
// more than one hard alert fired at once).
type Verdict struct {
	Exceeded bool
	Reason   Reason
	Alerts   []Alert
	Metrics  model.Metrics
}

// Evaluate computes elapsed/heartbeat-age/cost metrics for rec as of now
// and checks them against rec.Budget, returning every alert that fires
// (spec §4.J). It never mutates rec.
func Evaluate(rec model.AgentRecord, now time.Time, costUSD float64) Verdict {
	metrics := rec.Metrics

	if rec.Status == model.AgentRunning && rec.StartedAt != nil {
		metrics.ElapsedSeconds = now.Sub(*rec.StartedAt).Seconds()
	}
	if rec.LastHeartbeat != nil {
		metrics.HeartbeatAgeSecond = now.Sub(*rec.LastHeartbeat).Seconds()
	}
	if costUSD > 0 && metrics.CostUSD == 0 {
		metrics.CostUSD = costUSD
	}

	var hard, soft []Alert
	b := rec.Budget

	if b.TokenLimit > 0 && metrics.TokensUsed >= b.TokenLimit {
		hard = append(hard, Alert{Severity: SeverityHard, Reason: ReasonTokenLimit, Limit: float64(b.TokenLimit), Observed: float64(metrics.TokensUsed)})
	}
	if b.TimeLimitSeconds > 0 && metrics.ElapsedSeconds >= b.TimeLimitSeconds {
		hard = append(hard, Alert{Severity: SeverityHard, Reason: ReasonTimeLimit, Limit: b.TimeLimitSeconds, Observed: metrics.ElapsedSeconds})
	}
	if b.CostLimitUSD > 0 && metrics.CostUSD >= b.CostLimitUSD {
		hard = append(hard, Alert{Severity: SeverityHard, Reason: ReasonCostLimit, Limit: b.CostLimitUSD, Observed: metrics.CostUSD})
	}
	if b.HeartbeatTimeoutSeconds > 0 && metrics.HeartbeatAgeSecond >= b.HeartbeatTimeoutSeconds {
		hard = append(hard, Alert{Severity: SeverityHard, Reason: ReasonHeartbeatTimeout, Limit: b.HeartbeatTimeoutSeconds, Observed: metrics.HeartbeatAgeSecond})
	}
	if b.SLATimeoutSeconds > 0 && metrics.ElapsedSeconds >= b.SLATimeoutSeconds {
		hard = append(hard, Alert{Severity: SeverityHard, Reason: ReasonSLATimeout, Limit: b.SLATimeoutSeconds, Observed: metrics.ElapsedSeconds})
	}
	if b.HeartbeatIntervalSeconds > 0 && metrics.HeartbeatAgeSecond >= b.HeartbeatIntervalSeconds &&
		(b.HeartbeatTimeoutSeconds <= 0 || metrics.HeartbeatAgeSecond < b.HeartbeatTimeoutSeconds) {
		soft = append(soft, Alert{Severity: SeveritySoft, Reason: ReasonHeartbeatInterval, Limit: b.HeartbeatIntervalSeconds, Observed: metrics.HeartbeatAgeSecond})
	}

	v := Verdict{Metrics: metrics}
	v.Alerts = append(append([]Alert{}, hard...), soft...)

	switch {
	case len(hard) == 0:
		// not exceeded
	case len(hard) == 1:
		// A lone hard alert reports its own Reason verbatim, so a
		// heartbeat timeout is distinguishable from a cost/token kill
		// (spec §4.J).
		v.Exceeded = true
		v.Reason = hard[0].Reason
	default:
		v.Exceeded = true
		v.Reason = ReasonMultipleLimits
	}
	return v
}
