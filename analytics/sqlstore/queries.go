package sqlstore

import (
	"context"
	"fmt"

	"github.com/subagentctl/subagentctl/analytics"
)

// PerformanceByAgent aggregates run count, average tokens/cost, and
// success ratio grouped by agent_type (spec §4.D query surface).
func (s *Store) PerformanceByAgent(ctx context.Context) ([]analytics.AgentPerformance, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT
			agent_type,
			COUNT(*) AS run_count,
			AVG(tokens_used) AS avg_tokens,
			AVG(cost_usd) AS avg_cost_usd,
			AVG(CASE WHEN status = 'completed' THEN 1.0 ELSE 0.0 END) AS success_ratio
		FROM agents
		GROUP BY agent_type
		ORDER BY run_count DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: performance by agent: %w", err)
	}
	defer rows.Close()

	var out []analytics.AgentPerformance
	for rows.Next() {
		var r analytics.AgentPerformance
		if err := rows.Scan(&r.AgentType, &r.RunCount, &r.AvgTokens, &r.AvgCostUSD, &r.SuccessRatio); err != nil {
			return nil, fmt.Errorf("sqlstore: scan performance row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ToolEffectiveness aggregates call and success counts grouped by tool.
func (s *Store) ToolEffectiveness(ctx context.Context) ([]analytics.ToolEffectivenessRow, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT
			tool,
			COUNT(*) AS call_count,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) AS success_count
		FROM tool_usage
		GROUP BY tool
		ORDER BY call_count DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: tool effectiveness: %w", err)
	}
	defer rows.Close()

	var out []analytics.ToolEffectivenessRow
	for rows.Next() {
		var r analytics.ToolEffectivenessRow
		if err := rows.Scan(&r.Tool, &r.CallCount, &r.SuccessCount); err != nil {
			return nil, fmt.Errorf("sqlstore: scan tool effectiveness row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ErrorPatterns aggregates error counts grouped by tool and error_kind.
func (s *Store) ErrorPatterns(ctx context.Context) ([]analytics.ErrorPatternSummary, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT tool, error_kind, COUNT(*) AS count
		FROM error_patterns
		GROUP BY tool, error_kind
		ORDER BY count DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: error patterns: %w", err)
	}
	defer rows.Close()

	var out []analytics.ErrorPatternSummary
	for rows.Next() {
		var r analytics.ErrorPatternSummary
		if err := rows.Scan(&r.Tool, &r.ErrorKind, &r.Count); err != nil {
			return nil, fmt.Errorf("sqlstore: scan error pattern row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SessionSummary aggregates one session's totals across agents, tool
// calls, and errors.
func (s *Store) SessionSummary(ctx context.Context, sessionID string) (analytics.SessionSummary, error) {
	summary := analytics.SessionSummary{SessionID: sessionID}

	row := s.db.QueryRowxContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(tokens_used), 0), COALESCE(SUM(cost_usd), 0)
		FROM agents WHERE session_id = $1`, sessionID)
	if err := row.Scan(&summary.AgentCount, &summary.TokensUsed, &summary.CostUSD); err != nil {
		return summary, fmt.Errorf("sqlstore: session agent totals: %w", err)
	}

	if err := s.db.QueryRowxContext(ctx, `
		SELECT COUNT(*) FROM tool_usage WHERE session_id = $1`, sessionID).Scan(&summary.ToolCalls); err != nil {
		return summary, fmt.Errorf("sqlstore: session tool calls: %w", err)
	}

	if err := s.db.QueryRowxContext(ctx, `
		SELECT COUNT(*) FROM error_patterns WHERE session_id = $1`, sessionID).Scan(&summary.ErrorCount); err != nil {
		return summary, fmt.Errorf("sqlstore: session error count: %w", err)
	}

	return summary, nil
}
