package capture

import "sync"

// BoundedStore is a fixed-capacity map with FIFO eviction. Insertion order is
// tracked per key; overwriting an existing key does not refresh its position.
// All operations are total and safe for concurrent use.
type BoundedStore[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]V
	order    []K
	// stale counts queue entries invalidated by Delete. A deleted key that is
	// re-inserted appends a fresh queue entry, so its earlier entries must be
	// discarded by count, not by liveness.
	stale map[K]int
}

// NewBoundedStore creates a store that holds at most capacity entries.
func NewBoundedStore[K comparable, V any](capacity int) *BoundedStore[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &BoundedStore[K, V]{
		capacity: capacity,
		items:    make(map[K]V, capacity),
		stale:    make(map[K]int),
	}
}

// Put inserts or overwrites. When inserting a new key would exceed capacity,
// the oldest still-present key is evicted first.
func (s *BoundedStore[K, V]) Put(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; ok {
		s.items[key] = value
		return
	}

	if len(s.items) >= s.capacity {
		s.evictOldest()
	}
	s.items[key] = value
	s.order = append(s.order, key)
}

// evictOldest pops queue entries until it finds a live one. Stale entries
// left behind by Delete are consumed by count along the way, keeping eviction
// O(1) amortized. Caller must hold the lock.
func (s *BoundedStore[K, V]) evictOldest() {
	for len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		if n := s.stale[oldest]; n > 0 {
			// Entry invalidated by an earlier Delete; the key may be live
			// again at a newer queue position.
			if n == 1 {
				delete(s.stale, oldest)
			} else {
				s.stale[oldest] = n - 1
			}
			continue
		}
		if _, ok := s.items[oldest]; ok {
			delete(s.items, oldest)
			return
		}
	}
}

// Get returns the value for key. It does not affect insertion order.
func (s *BoundedStore[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	return v, ok
}

// Delete removes key if present; removing an absent key is a no-op. The
// key's queue entry is marked stale rather than searched for, so Delete
// stays O(1).
func (s *BoundedStore[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return
	}
	delete(s.items, key)
	s.stale[key]++
}

// Len reports the number of live entries.
func (s *BoundedStore[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Values returns the live values in insertion order, oldest first. A key's
// stale queue entries precede its live one, so they are skipped by count to
// report the position of the live insertion.
func (s *BoundedStore[K, V]) Values() []V {
	s.mu.Lock()
	defer s.mu.Unlock()

	skip := make(map[K]int, len(s.stale))
	for k, n := range s.stale {
		skip[k] = n
	}

	out := make([]V, 0, len(s.items))
	for _, key := range s.order {
		if skip[key] > 0 {
			skip[key]--
			continue
		}
		if v, ok := s.items[key]; ok {
			out = append(out, v)
		}
	}
	return out
}

// CappedLog is an append-only list that keeps at most capacity entries,
// discarding the oldest on overflow.
type CappedLog[T any] struct {
	mu       sync.Mutex
	capacity int
	entries  []T
}

// NewCappedLog creates a log that retains the most recent capacity entries.
func NewCappedLog[T any](capacity int) *CappedLog[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &CappedLog[T]{capacity: capacity}
}

// Append adds an entry, evicting the oldest if the log is full.
func (l *CappedLog[T]) Append(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, v)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
}

// Items returns a copy of the entries, oldest first.
func (l *CappedLog[T]) Items() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]T, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the number of retained entries.
func (l *CappedLog[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
