// Package sqlstore implements analytics.Store over a caller-supplied
// *sql.DB using sqlx (grounded on r3e-network-service_layer's
// internal/platform/database package and its sqlx-based stores),
// mirroring the teacher's driver-agnostic plugin shape: analytics.Store
// is the interface, Store the sqlx-backed implementation, driver
// selection (Postgres via github.com/lib/pq, also present in the pack)
// left to the process wiring the *sql.DB.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/subagentctl/subagentctl/analytics"
)

// Store is the sqlx-backed analytics.Store implementation.
type Store struct {
	db *sqlx.DB
	mu chan struct{} // one writer transaction at a time (spec §5)
}

// New wraps db with sqlx and enforces the single-writer-transaction
// policy (spec §5: "SQL database: one writer transaction at a time via
// an internal mutex").
func New(db *sql.DB, driverName string) *Store {
	return &Store{db: sqlx.NewDb(db, driverName), mu: make(chan struct{}, 1)}
}

// Migrate creates the tables analytics.Store reads and writes if they do
// not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	agent_id TEXT NOT NULL,
	agent_type TEXT NOT NULL,
	model TEXT,
	session_id TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ,
	tokens_used BIGINT DEFAULT 0,
	cost_usd DOUBLE PRECISION DEFAULT 0
);
CREATE TABLE IF NOT EXISTS tool_usage (
	agent_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	tool TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS error_patterns (
	agent_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	tool TEXT NOT NULL,
	error_kind TEXT,
	message TEXT,
	at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	started_at TIMESTAMPTZ,
	ended_at TIMESTAMPTZ,
	status TEXT
);
`

func (s *Store) withWriteLock(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	select {
	case s.mu <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.mu }()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit: %w", err)
	}
	return nil
}

// InsertAgents batch-inserts agent facts in a single transaction.
func (s *Store) InsertAgents(ctx context.Context, rows []analytics.AgentRow) error {
	return s.withWriteLock(ctx, func(tx *sqlx.Tx) error {
		for _, r := range rows {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO agents (agent_id, agent_type, model, session_id, status, started_at, finished_at, tokens_used, cost_usd)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				r.AgentID, r.AgentType, r.Model, r.SessionID, r.Status, nullTime(r.StartedAt), nullTime(r.FinishedAt), r.TokensUsed, r.CostUSD)
			if err != nil {
				return fmt.Errorf("sqlstore: insert agents: %w", err)
			}
		}
		return nil
	})
}

// InsertToolUsage batch-inserts tool-invocation facts in a single
// transaction.
func (s *Store) InsertToolUsage(ctx context.Context, rows []analytics.ToolUsageRow) error {
	return s.withWriteLock(ctx, func(tx *sqlx.Tx) error {
		for _, r := range rows {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO tool_usage (agent_id, session_id, tool, success, at)
				VALUES ($1, $2, $3, $4, $5)`,
				r.AgentID, r.SessionID, r.Tool, r.Success, r.At)
			if err != nil {
				return fmt.Errorf("sqlstore: insert tool_usage: %w", err)
			}
		}
		return nil
	})
}

// InsertErrorPatterns batch-inserts tool-error facts in a single
// transaction.
func (s *Store) InsertErrorPatterns(ctx context.Context, rows []analytics.ErrorPatternRow) error {
	return s.withWriteLock(ctx, func(tx *sqlx.Tx) error {
		for _, r := range rows {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO error_patterns (agent_id, session_id, tool, error_kind, message, at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				r.AgentID, r.SessionID, r.Tool, r.ErrorKind, r.Message, r.At)
			if err != nil {
				return fmt.Errorf("sqlstore: insert error_patterns: %w", err)
			}
		}
		return nil
	})
}

// UpsertSessionStart inserts a session row, ignoring conflicts on an
// already-known session_id (spec §4.D: "INSERT OR IGNORE on start").
func (s *Store) UpsertSessionStart(ctx context.Context, rows []analytics.SessionRow) error {
	return s.withWriteLock(ctx, func(tx *sqlx.Tx) error {
		for _, r := range rows {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sessions (session_id, started_at, status)
				VALUES ($1, $2, $3)
				ON CONFLICT (session_id) DO NOTHING`,
				r.SessionID, r.StartedAt, r.Status)
			if err != nil {
				return fmt.Errorf("sqlstore: upsert sessions: %w", err)
			}
		}
		return nil
	})
}

// UpdateSessionEnd updates the session row on session.ended.
func (s *Store) UpdateSessionEnd(ctx context.Context, sessionID string, endedAt time.Time, status string) error {
	return s.withWriteLock(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE sessions SET ended_at = $1, status = $2 WHERE session_id = $3`,
			endedAt, status, sessionID)
		if err != nil {
			return fmt.Errorf("sqlstore: update session end: %w", err)
		}
		return nil
	})
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
