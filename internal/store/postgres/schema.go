// Package postgres provides the PostgreSQL-backed [store.Store].
//
// Sessions live in interview_sessions; the transcript lives in
// interview_messages keyed by (session_id, seq) where seq is the message's
// position in the transcript. Inserting with ON CONFLICT DO NOTHING makes
// appends idempotent, and status changes are guarded on status = 'active'.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// DDL
// ─────────────────────────────────────────────────────────────────────────────

const ddlSessions = `
CREATE TABLE IF NOT EXISTS interview_sessions (
    id              TEXT         PRIMARY KEY,
    interview_type  TEXT         NOT NULL DEFAULT '',
    difficulty      TEXT         NOT NULL,
    role_context    JSONB        NOT NULL DEFAULT '{}',
    question_budget INTEGER      NOT NULL DEFAULT 0,
    status          TEXT         NOT NULL DEFAULT 'active',
    metrics         JSONB,
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    ended_at        TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_interview_sessions_status
    ON interview_sessions (status);
`

const ddlMessages = `
CREATE TABLE IF NOT EXISTS interview_messages (
    session_id   TEXT         NOT NULL REFERENCES interview_sessions (id) ON DELETE CASCADE,
    seq          INTEGER      NOT NULL,
    role         TEXT         NOT NULL,
    content      TEXT         NOT NULL,
    timestamp    TIMESTAMPTZ  NOT NULL,
    duration_ns  BIGINT       NOT NULL DEFAULT 0,
    PRIMARY KEY (session_id, seq)
);
`

// Migrate creates the tables if they do not exist. It is idempotent and safe
// to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlSessions, ddlMessages} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
