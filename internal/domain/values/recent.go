package values

// Recent is a fixed-capacity list ordered most-recent-first.
// Prepending beyond capacity silently drops the oldest entries.
// Recent is not safe for concurrent use; callers own the goroutine.
type Recent[T any] struct {
	items    []T
	capacity int
}

// NewRecent creates an empty list holding at most capacity entries
func NewRecent[T any](capacity int) *Recent[T] {
	if capacity < 1 {
		panic("values: recent list capacity must be positive")
	}
	return &Recent[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Prepend inserts item at the front and returns how many entries were dropped
func (r *Recent[T]) Prepend(item T) int {
	var zero T
	r.items = append(r.items, zero)
	copy(r.items[1:], r.items)
	r.items[0] = item
	return r.truncate()
}

// ReplaceAll discards the current entries. items must already be
// most-recent-first; anything beyond capacity is dropped.
func (r *Recent[T]) ReplaceAll(items []T) int {
	r.items = append(r.items[:0:0], items...)
	return r.truncate()
}

// Remove deletes every entry for which match returns true, keeping the
// relative order of the rest. It returns the number of removed entries.
func (r *Recent[T]) Remove(match func(T) bool) int {
	kept := r.items[:0]
	removed := 0
	for _, item := range r.items {
		if match(item) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	var zero T
	for i := len(kept); i < len(r.items); i++ {
		r.items[i] = zero
	}
	r.items = kept
	return removed
}

// Clear removes all entries
func (r *Recent[T]) Clear() {
	r.items = make([]T, 0, r.capacity)
}

// Items returns a copy of the entries, most recent first
func (r *Recent[T]) Items() []T {
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

func (r *Recent[T]) Len() int { return len(r.items) }

func (r *Recent[T]) Cap() int { return r.capacity }

func (r *Recent[T]) truncate() int {
	if len(r.items) <= r.capacity {
		return 0
	}
	dropped := len(r.items) - r.capacity
	var zero T
	for i := r.capacity; i < len(r.items); i++ {
		r.items[i] = zero
	}
	r.items = r.items[:r.capacity]
	return dropped
}
