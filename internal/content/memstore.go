package content

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is suitable for single-process use and testing.
type MemStore struct {
	mu    sync.RWMutex
	sets  map[string]Set
	items map[string]Item
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		sets:  make(map[string]Set),
		items: make(map[string]Item),
	}
}

// AddSet implements [Store.AddSet].
func (s *MemStore) AddSet(_ context.Context, set Set) error {
	if err := ValidateSet(set); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sets == nil {
		s.sets = make(map[string]Set)
		s.items = make(map[string]Item)
	}

	if _, exists := s.sets[set.ID]; exists {
		return fmt.Errorf("content: set %q: %w", set.ID, ErrDuplicateID)
	}
	for _, it := range set.Items {
		if _, exists := s.items[it.ID]; exists {
			return fmt.Errorf("content: item %q: %w", it.ID, ErrDuplicateID)
		}
	}

	s.sets[set.ID] = set
	for _, it := range set.Items {
		s.items[it.ID] = it
	}
	return nil
}

// GetSet implements [Store.GetSet].
func (s *MemStore) GetSet(_ context.Context, id string) (Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.sets[id]
	if !ok {
		return Set{}, fmt.Errorf("content: set %q: %w", id, ErrNotFound)
	}
	return set, nil
}

// GetItem implements [Store.GetItem].
func (s *MemStore) GetItem(_ context.Context, id string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]
	if !ok {
		return Item{}, fmt.Errorf("content: item %q: %w", id, ErrNotFound)
	}
	return it, nil
}

// ListSets implements [Store.ListSets].
func (s *MemStore) ListSets(_ context.Context) ([]Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Set, 0, len(s.sets))
	for _, set := range s.sets {
		result = append(result, set)
	}
	slices.SortFunc(result, func(a, b Set) int {
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}
