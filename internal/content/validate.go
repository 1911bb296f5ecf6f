package content

import "fmt"

// ValidateSet checks set for structural problems: empty set ID, items with
// empty IDs or words, and duplicate item IDs within the set. An empty item
// list is allowed; a session over such a set simply completes immediately.
func ValidateSet(set Set) error {
	if set.ID == "" {
		return fmt.Errorf("content: set ID must not be empty")
	}

	seen := make(map[string]struct{}, len(set.Items))
	for i, it := range set.Items {
		if it.ID == "" {
			return fmt.Errorf("content: set %q: item %d has empty ID", set.ID, i)
		}
		if it.Word == "" {
			return fmt.Errorf("content: set %q: item %q has empty word", set.ID, it.ID)
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("content: set %q: item %q: %w", set.ID, it.ID, ErrDuplicateID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}
