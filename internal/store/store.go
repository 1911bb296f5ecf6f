// Package store defines the persistence contracts of the quiz engine: the
// per-item mastery record store, the single-slot resume pointer store, and
// the keyed session-snapshot store.
//
// All interfaces are public within the module so alternative backends
// (Postgres, in-memory, file) can be supplied without depending on engine
// internals. Every implementation must be safe for concurrent use, although
// the engine itself is single-writer per (set, mode).
package store

import (
	"context"
	"time"
)

// Mode identifies a practice mode. Mastery records are keyed by
// (item id, mode) so the same item tracks progress independently per mode.
type Mode string

const (
	// ModeTyped drills by typing the answer.
	ModeTyped Mode = "typed"

	// ModeChoice drills by picking from multiple choices.
	ModeChoice Mode = "choice"

	// ModeSpoken drills by speaking the answer.
	ModeSpoken Mode = "spoken"
)

// IsValid reports whether m is a recognised practice mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeTyped, ModeChoice, ModeSpoken:
		return true
	}
	return false
}

// MasteryRecord is the persistent per-(item, mode) progress record. It is
// created on first practice of an item and mutated on every answer; it is
// never deleted except through [ScoreStore.Reset].
type MasteryRecord struct {
	ItemID          string    `json:"item_id"`
	Mode            Mode      `json:"mode"`
	CorrectCount    int       `json:"correct_count"`
	WrongCount      int       `json:"wrong_count"`
	MemoryScore     int       `json:"memory_score"`
	LastPracticedAt time.Time `json:"last_practiced_at"`
}

// ScoreUpdate is a partial update applied to a [MasteryRecord]. Count fields
// are deltas; SetScore, when non-nil, replaces the memory score.
type ScoreUpdate struct {
	// AddCorrect is added to CorrectCount.
	AddCorrect int

	// AddWrong is added to WrongCount.
	AddWrong int

	// SetScore, when non-nil, becomes the new MemoryScore.
	SetScore *int

	// PracticedAt, when non-zero, becomes the new LastPracticedAt.
	PracticedAt time.Time
}

// ScoreStore persists mastery records keyed by (item id, mode).
type ScoreStore interface {
	// Get returns the record for (itemID, mode). ok is false when the item
	// has never been practiced in that mode.
	Get(ctx context.Context, itemID string, mode Mode) (rec MasteryRecord, ok bool, err error)

	// Put applies upd to the record for (itemID, mode), creating the record
	// if it does not exist yet.
	Put(ctx context.Context, itemID string, mode Mode, upd ScoreUpdate) error

	// Reset deletes the record for (itemID, mode). Resetting a record that
	// does not exist is a no-op.
	Reset(ctx context.Context, itemID string, mode Mode) error
}

// ResumePointer marks which session was interrupted; it backs the
// "continue where you left off" affordance. A single global slot,
// independent of the snapshot store.
type ResumePointer struct {
	Mode    Mode      `json:"mode"`
	SetID   string    `json:"set_id"`
	SavedAt time.Time `json:"saved_at"`
}

// ResumeStore is the single-slot resume pointer store. Save overwrites the
// slot; Clear empties it.
type ResumeStore interface {
	Save(ctx context.Context, ptr ResumePointer) error
	Load(ctx context.Context) (ptr ResumePointer, ok bool, err error)
	Clear(ctx context.Context) error
}

// SnapshotStore persists serialized in-flight session state keyed by
// (set id, mode). The payload is opaque to the store; the session layer owns
// the shape and its validation so a corrupt snapshot degrades to
// "no snapshot" without the store knowing.
type SnapshotStore interface {
	Save(ctx context.Context, setID string, mode Mode, data []byte) error
	Load(ctx context.Context, setID string, mode Mode) (data []byte, ok bool, err error)
	Clear(ctx context.Context, setID string, mode Mode) error
}
