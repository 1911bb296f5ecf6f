// Package drill implements the adaptive quiz session engine: the queue
// scheduler with requeue-on-miss, the session snapshot codec, and the
// session orchestrator that ties scheduling, scoring, persistence, and
// spoken-answer verification together.
package drill

import "math/rand"

// Status marks how an item got its current queue position.
type Status string

const (
	// StatusPending marks an item not yet answered this session.
	StatusPending Status = "pending"

	// StatusWrong marks an item that was answered wrong and requeued.
	StatusWrong Status = "wrong"
)

// IsValid reports whether s is a recognised item status.
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusWrong
}

// Item is one scheduled entry in a session queue.
type Item struct {
	ID     string
	Word   string
	Status Status
}

// requeueOffset is how far behind the head a missed item is reinserted, so
// it resurfaces within the next few presentations instead of at the very
// end, but never immediately (which would make guessing trivial).
const requeueOffset = 3

// Queue is the session scheduler: an ordered sequence of items with
// FIFO-with-reinsertion semantics. A correct answer removes the head; a
// wrong answer moves the head back a bounded distance. No item ID appears
// more than once at a time.
//
// Queue is not safe for concurrent use; the orchestrator serializes access.
type Queue struct {
	items []Item
}

// NewQueue builds a freshly shuffled queue from items. Entries with a
// duplicate ID or an empty ID are skipped. Statuses are reset to
// [StatusPending]. The shuffle uses rng so sessions are reproducible under
// test; every permutation is equally likely.
//
// An empty result is valid: the session completes immediately.
func NewQueue(items []Item, rng *rand.Rand) *Queue {
	q := &Queue{items: dedup(items)}
	for i := range q.items {
		q.items[i].Status = StatusPending
	}
	rng.Shuffle(len(q.items), func(i, j int) {
		q.items[i], q.items[j] = q.items[j], q.items[i]
	})
	return q
}

// RestoreQueue rebuilds a queue from previously serialized items, keeping
// their order and statuses. Entries with a duplicate or empty ID are
// skipped.
func RestoreQueue(items []Item) *Queue {
	return &Queue{items: dedup(items)}
}

func dedup(items []Item) []Item {
	out := make([]Item, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Head returns the current item without removing it. ok is false when the
// queue is empty.
func (q *Queue) Head() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// Advance removes the current head. When correct is false the item is
// reinserted, tagged [StatusWrong], at position min(remaining length, 3):
// the queue length is unchanged on a miss and strictly decreases on a
// correct answer. Advancing an empty queue is a no-op.
func (q *Queue) Advance(correct bool) {
	if len(q.items) == 0 {
		return
	}
	head := q.items[0]
	q.items = q.items[1:]
	if correct {
		return
	}

	head.Status = StatusWrong
	pos := min(len(q.items), requeueOffset)
	q.items = append(q.items[:pos:pos], append([]Item{head}, q.items[pos:]...)...)
}

// Complete reports whether the queue is empty.
func (q *Queue) Complete() bool { return len(q.items) == 0 }

// Len returns the number of items still queued.
func (q *Queue) Len() int { return len(q.items) }

// Items returns a copy of the queued items in order, head first.
func (q *Queue) Items() []Item {
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}
