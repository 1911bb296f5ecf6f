package drill

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lexidrill/lexidrill/internal/content"
	"github.com/lexidrill/lexidrill/internal/store"
)

// SnapshotItem is one queue entry in serialized form. Only the ID and
// status are persisted; words are re-joined against the content store on
// restore so renamed content never resurrects stale text.
type SnapshotItem struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// Snapshot is the serialized state of an interrupted session. It is written
// on suspend, overwritten by each later suspend, and deleted on normal
// completion. It is never partially trusted: a snapshot that fails to
// decode or validate is discarded wholesale.
type Snapshot struct {
	SetID           string         `json:"set_id"`
	Mode            store.Mode     `json:"mode"`
	Queue           []SnapshotItem `json:"queue"`
	Tries           int            `json:"session_tries"`
	Wrongs          map[string]int `json:"session_wrongs"`
	MasteredAtStart int            `json:"mastered_at_start"`
	TotalItems      int            `json:"total_items"`
	NewlyMastered   int            `json:"newly_mastered"`
	SavedAt         time.Time      `json:"saved_at"`
}

// Validate checks the snapshot for structural problems that would make a
// restore unsafe.
func (s *Snapshot) Validate() error {
	if s.SetID == "" {
		return fmt.Errorf("drill: snapshot has empty set id")
	}
	if !s.Mode.IsValid() {
		return fmt.Errorf("drill: snapshot has invalid mode %q", s.Mode)
	}
	if s.Tries < 0 || s.MasteredAtStart < 0 || s.TotalItems < 0 || s.NewlyMastered < 0 {
		return fmt.Errorf("drill: snapshot has negative counters")
	}
	for i, it := range s.Queue {
		if it.ID == "" {
			return fmt.Errorf("drill: snapshot queue entry %d has empty id", i)
		}
		if !it.Status.IsValid() {
			return fmt.Errorf("drill: snapshot queue entry %q has invalid status %q", it.ID, it.Status)
		}
	}
	return nil
}

// Encode serializes the snapshot to JSON.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("drill: encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses and validates a serialized snapshot. Any decode or
// validation failure is returned as an error; callers treat that as
// "no snapshot" and start fresh.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("drill: decode snapshot: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// rehydrate joins the snapshot's queue entries against set, dropping ids
// that no longer exist. An empty result means the restored session is
// already complete; that is normal, not an error.
func rehydrate(snap Snapshot, set content.Set) []Item {
	byID := make(map[string]content.Item, len(set.Items))
	for _, it := range set.Items {
		byID[it.ID] = it
	}

	items := make([]Item, 0, len(snap.Queue))
	for _, entry := range snap.Queue {
		ci, ok := byID[entry.ID]
		if !ok {
			continue
		}
		items = append(items, Item{ID: ci.ID, Word: ci.Word, Status: entry.Status})
	}
	return items
}
