// Package postgres provides a PostgreSQL-backed implementation of the three
// quiz-engine store contracts (mastery scores, resume pointer, session
// snapshots).
//
// All three share a single [pgxpool.Pool] connection pool. [Migrate] is
// idempotent and safe to call on every application start.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
//
//	_ = st.Scores().Put(ctx, itemID, mode, upd)
//	_ = st.Resume().Save(ctx, ptr)
//	_ = st.Snapshots().Save(ctx, setID, mode, data)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlMasteryRecords = `
CREATE TABLE IF NOT EXISTS mastery_records (
    item_id            TEXT         NOT NULL,
    mode               TEXT         NOT NULL,
    correct_count      INTEGER      NOT NULL DEFAULT 0,
    wrong_count        INTEGER      NOT NULL DEFAULT 0,
    memory_score       INTEGER      NOT NULL DEFAULT 0,
    last_practiced_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (item_id, mode)
);

CREATE INDEX IF NOT EXISTS idx_mastery_records_mode
    ON mastery_records (mode);
`

// The resume pointer is a single global slot: the slot column is fixed to 1
// and enforced by a CHECK so the table can never hold more than one row.
const ddlResumeSlot = `
CREATE TABLE IF NOT EXISTS resume_slot (
    slot      INTEGER      PRIMARY KEY DEFAULT 1 CHECK (slot = 1),
    mode      TEXT         NOT NULL,
    set_id    TEXT         NOT NULL,
    saved_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

const ddlSessionSnapshots = `
CREATE TABLE IF NOT EXISTS session_snapshots (
    set_id    TEXT         NOT NULL,
    mode      TEXT         NOT NULL,
    data      JSONB        NOT NULL,
    saved_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (set_id, mode)
);
`

// Migrate creates or ensures all required tables exist. It is idempotent
// (CREATE TABLE IF NOT EXISTS) and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlMasteryRecords,
		ddlResumeSlot,
		ddlSessionSnapshots,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
