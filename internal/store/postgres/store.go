package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexidrill/lexidrill/internal/store"
)

// Compile-time interface checks.
//
// ResumeStore and SnapshotStore both define Save/Load/Clear with different
// signatures. Go does not allow a single struct to implement both
// simultaneously, so each contract is exposed as a sub-type via
// [Store.Scores], [Store.Resume], and [Store.Snapshots].
var (
	_ store.ScoreStore    = (*ScoreStoreImpl)(nil)
	_ store.ResumeStore   = (*ResumeStoreImpl)(nil)
	_ store.SnapshotStore = (*SnapshotStoreImpl)(nil)
)

// Store is the central PostgreSQL-backed store for the quiz engine. It holds
// a single [pgxpool.Pool] and exposes the three store contracts:
//
//   - [Store.Scores] returns a [ScoreStoreImpl] implementing [store.ScoreStore]
//   - [Store.Resume] returns a [ResumeStoreImpl] implementing [store.ResumeStore]
//   - [Store.Snapshots] returns a [SnapshotStoreImpl] implementing [store.SnapshotStore]
//
// All operations are safe for concurrent use.
type Store struct {
	pool      *pgxpool.Pool
	scores    *ScoreStoreImpl
	resume    *ResumeStoreImpl
	snapshots *SnapshotStoreImpl
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, and runs [Migrate] to ensure all required
// tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{
		pool:      pool,
		scores:    &ScoreStoreImpl{pool: pool},
		resume:    &ResumeStoreImpl{pool: pool},
		snapshots: &SnapshotStoreImpl{pool: pool},
	}, nil
}

// Scores returns the mastery record store implementation which satisfies
// [store.ScoreStore].
func (s *Store) Scores() *ScoreStoreImpl { return s.scores }

// Resume returns the resume pointer store implementation which satisfies
// [store.ResumeStore].
func (s *Store) Resume() *ResumeStoreImpl { return s.resume }

// Snapshots returns the session snapshot store implementation which satisfies
// [store.SnapshotStore].
func (s *Store) Snapshots() *SnapshotStoreImpl { return s.snapshots }

// Ping verifies the database is reachable. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres store: ping: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying connection pool.
// It should be called when the Store is no longer needed, typically via defer.
func (s *Store) Close() {
	s.pool.Close()
}

// ScoreStoreImpl persists mastery records in the mastery_records table.
//
// Obtain one via [Store.Scores] rather than constructing directly.
// All methods are safe for concurrent use.
type ScoreStoreImpl struct {
	pool *pgxpool.Pool
}

// Get implements [store.ScoreStore].
func (s *ScoreStoreImpl) Get(ctx context.Context, itemID string, mode store.Mode) (store.MasteryRecord, bool, error) {
	const q = `
		SELECT item_id, mode, correct_count, wrong_count, memory_score, last_practiced_at
		FROM   mastery_records
		WHERE  item_id = $1 AND mode = $2`

	var rec store.MasteryRecord
	err := s.pool.QueryRow(ctx, q, itemID, string(mode)).Scan(
		&rec.ItemID,
		&rec.Mode,
		&rec.CorrectCount,
		&rec.WrongCount,
		&rec.MemoryScore,
		&rec.LastPracticedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.MasteryRecord{}, false, nil
	}
	if err != nil {
		return store.MasteryRecord{}, false, fmt.Errorf("score store: get: %w", err)
	}
	return rec, true, nil
}

// Put implements [store.ScoreStore]. The upsert applies count deltas on
// conflict and replaces the memory score only when upd.SetScore is set, so a
// partial update never clobbers fields it does not mention.
func (s *ScoreStoreImpl) Put(ctx context.Context, itemID string, mode store.Mode, upd store.ScoreUpdate) error {
	const q = `
		INSERT INTO mastery_records
		    (item_id, mode, correct_count, wrong_count, memory_score, last_practiced_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, 0), COALESCE($6, now()))
		ON CONFLICT (item_id, mode) DO UPDATE SET
		    correct_count     = mastery_records.correct_count + EXCLUDED.correct_count,
		    wrong_count       = mastery_records.wrong_count + EXCLUDED.wrong_count,
		    memory_score      = COALESCE($5, mastery_records.memory_score),
		    last_practiced_at = COALESCE($6, mastery_records.last_practiced_at)`

	var practicedAt any
	if !upd.PracticedAt.IsZero() {
		practicedAt = upd.PracticedAt
	}

	_, err := s.pool.Exec(ctx, q,
		itemID,
		string(mode),
		upd.AddCorrect,
		upd.AddWrong,
		upd.SetScore,
		practicedAt,
	)
	if err != nil {
		return fmt.Errorf("score store: put: %w", err)
	}
	return nil
}

// Reset implements [store.ScoreStore]. Deleting an absent record is a no-op.
func (s *ScoreStoreImpl) Reset(ctx context.Context, itemID string, mode store.Mode) error {
	const q = `DELETE FROM mastery_records WHERE item_id = $1 AND mode = $2`

	if _, err := s.pool.Exec(ctx, q, itemID, string(mode)); err != nil {
		return fmt.Errorf("score store: reset: %w", err)
	}
	return nil
}

// ResumeStoreImpl persists the single resume pointer in the resume_slot
// table, which a CHECK constraint limits to one row.
//
// Obtain one via [Store.Resume] rather than constructing directly.
type ResumeStoreImpl struct {
	pool *pgxpool.Pool
}

// Save implements [store.ResumeStore]. It overwrites the slot.
func (s *ResumeStoreImpl) Save(ctx context.Context, ptr store.ResumePointer) error {
	const q = `
		INSERT INTO resume_slot (slot, mode, set_id, saved_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (slot) DO UPDATE SET
		    mode     = EXCLUDED.mode,
		    set_id   = EXCLUDED.set_id,
		    saved_at = EXCLUDED.saved_at`

	if _, err := s.pool.Exec(ctx, q, string(ptr.Mode), ptr.SetID, ptr.SavedAt); err != nil {
		return fmt.Errorf("resume store: save: %w", err)
	}
	return nil
}

// Load implements [store.ResumeStore].
func (s *ResumeStoreImpl) Load(ctx context.Context) (store.ResumePointer, bool, error) {
	const q = `SELECT mode, set_id, saved_at FROM resume_slot WHERE slot = 1`

	var ptr store.ResumePointer
	err := s.pool.QueryRow(ctx, q).Scan(&ptr.Mode, &ptr.SetID, &ptr.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ResumePointer{}, false, nil
	}
	if err != nil {
		return store.ResumePointer{}, false, fmt.Errorf("resume store: load: %w", err)
	}
	return ptr, true, nil
}

// Clear implements [store.ResumeStore].
func (s *ResumeStoreImpl) Clear(ctx context.Context) error {
	const q = `DELETE FROM resume_slot WHERE slot = 1`

	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("resume store: clear: %w", err)
	}
	return nil
}

// SnapshotStoreImpl persists serialized session snapshots in the
// session_snapshots table keyed by (set_id, mode).
//
// Obtain one via [Store.Snapshots] rather than constructing directly.
type SnapshotStoreImpl struct {
	pool *pgxpool.Pool
}

// Save implements [store.SnapshotStore]. It overwrites any previous snapshot
// for the same (setID, mode).
func (s *SnapshotStoreImpl) Save(ctx context.Context, setID string, mode store.Mode, data []byte) error {
	const q = `
		INSERT INTO session_snapshots (set_id, mode, data, saved_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (set_id, mode) DO UPDATE SET
		    data     = EXCLUDED.data,
		    saved_at = now()`

	if _, err := s.pool.Exec(ctx, q, setID, string(mode), data); err != nil {
		return fmt.Errorf("snapshot store: save: %w", err)
	}
	return nil
}

// Load implements [store.SnapshotStore].
func (s *SnapshotStoreImpl) Load(ctx context.Context, setID string, mode store.Mode) ([]byte, bool, error) {
	const q = `SELECT data FROM session_snapshots WHERE set_id = $1 AND mode = $2`

	var data []byte
	err := s.pool.QueryRow(ctx, q, setID, string(mode)).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("snapshot store: load: %w", err)
	}
	return data, true, nil
}

// Clear implements [store.SnapshotStore].
func (s *SnapshotStoreImpl) Clear(ctx context.Context, setID string, mode store.Mode) error {
	const q = `DELETE FROM session_snapshots WHERE set_id = $1 AND mode = $2`

	if _, err := s.pool.Exec(ctx, q, setID, string(mode)); err != nil {
		return fmt.Errorf("snapshot store: clear: %w", err)
	}
	return nil
}
