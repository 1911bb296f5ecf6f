package store

import (
	"context"
	"sync"
)

type scoreKey struct {
	itemID string
	mode   Mode
}

type snapshotKey struct {
	setID string
	mode  Mode
}

// MemStore is a thread-safe, in-memory backend for all three store
// contracts. It is suitable for single-process use and testing.
// Obtain the typed views via [MemStore.Scores], [MemStore.Resume], and
// [MemStore.Snapshots].
type MemStore struct {
	mu        sync.RWMutex
	scores    map[scoreKey]MasteryRecord
	resume    *ResumePointer
	snapshots map[snapshotKey][]byte
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		scores:    make(map[scoreKey]MasteryRecord),
		snapshots: make(map[snapshotKey][]byte),
	}
}

// Scores returns the [ScoreStore] view of this backend.
func (s *MemStore) Scores() ScoreStore { return (*memScores)(s) }

// Resume returns the [ResumeStore] view of this backend.
func (s *MemStore) Resume() ResumeStore { return (*memResume)(s) }

// Snapshots returns the [SnapshotStore] view of this backend.
func (s *MemStore) Snapshots() SnapshotStore { return (*memSnapshots)(s) }

// ── ScoreStore ────────────────────────────────────────────────────────────────

type memScores MemStore

var _ ScoreStore = (*memScores)(nil)

// Get implements [ScoreStore.Get].
func (s *memScores) Get(_ context.Context, itemID string, mode Mode) (MasteryRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.scores[scoreKey{itemID, mode}]
	return rec, ok, nil
}

// Put implements [ScoreStore.Put].
func (s *memScores) Put(_ context.Context, itemID string, mode Mode, upd ScoreUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scores == nil {
		s.scores = make(map[scoreKey]MasteryRecord)
	}

	key := scoreKey{itemID, mode}
	rec, ok := s.scores[key]
	if !ok {
		rec = MasteryRecord{ItemID: itemID, Mode: mode}
	}
	rec.CorrectCount += upd.AddCorrect
	rec.WrongCount += upd.AddWrong
	if upd.SetScore != nil {
		rec.MemoryScore = *upd.SetScore
	}
	if !upd.PracticedAt.IsZero() {
		rec.LastPracticedAt = upd.PracticedAt
	}
	s.scores[key] = rec
	return nil
}

// Reset implements [ScoreStore.Reset].
func (s *memScores) Reset(_ context.Context, itemID string, mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.scores, scoreKey{itemID, mode})
	return nil
}

// ── ResumeStore ───────────────────────────────────────────────────────────────

type memResume MemStore

var _ ResumeStore = (*memResume)(nil)

// Save implements [ResumeStore.Save]. Overwrites the single slot.
func (s *memResume) Save(_ context.Context, ptr ResumePointer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resume = &ptr
	return nil
}

// Load implements [ResumeStore.Load].
func (s *memResume) Load(_ context.Context) (ResumePointer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.resume == nil {
		return ResumePointer{}, false, nil
	}
	return *s.resume, true, nil
}

// Clear implements [ResumeStore.Clear].
func (s *memResume) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resume = nil
	return nil
}

// ── SnapshotStore ─────────────────────────────────────────────────────────────

type memSnapshots MemStore

var _ SnapshotStore = (*memSnapshots)(nil)

// Save implements [SnapshotStore.Save]. Overwrites any previous snapshot for
// the same (setID, mode).
func (s *memSnapshots) Save(_ context.Context, setID string, mode Mode, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshots == nil {
		s.snapshots = make(map[snapshotKey][]byte)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.snapshots[snapshotKey{setID, mode}] = cp
	return nil
}

// Load implements [SnapshotStore.Load].
func (s *memSnapshots) Load(_ context.Context, setID string, mode Mode) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.snapshots[snapshotKey{setID, mode}]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, true, nil
}

// Clear implements [SnapshotStore.Clear].
func (s *memSnapshots) Clear(_ context.Context, setID string, mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, snapshotKey{setID, mode})
	return nil
}
