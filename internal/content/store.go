package content

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GetSet and GetItem when the requested entry
// does not exist.
var ErrNotFound = errors.New("content not found")

// ErrDuplicateID is returned by AddSet when a set with the same ID already
// exists, or when a set contains two items with the same ID.
var ErrDuplicateID = errors.New("content with that ID already exists")

// Store manages vocabulary sets available for drilling.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// AddSet registers a new set. The set's ID must be non-empty and its
	// item IDs must be unique within the store.
	// Returns [ErrDuplicateID] if the set ID or any item ID is taken.
	AddSet(ctx context.Context, set Set) error

	// GetSet retrieves a set by ID.
	// Returns [ErrNotFound] when no set with that ID exists.
	GetSet(ctx context.Context, id string) (Set, error)

	// GetItem retrieves a single item by ID, regardless of which set it
	// belongs to.
	// Returns [ErrNotFound] when no item with that ID exists.
	GetItem(ctx context.Context, id string) (Item, error)

	// ListSets returns all registered sets ordered by ID.
	ListSets(ctx context.Context) ([]Set, error)
}
