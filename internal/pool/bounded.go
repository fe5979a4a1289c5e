// Package pool provides bounded in-memory collections of previously observed
// records that virtual users draw from when building follow-up requests.
package pool

import "errors"

// ErrEmpty is returned when a value is requested from an empty pool.
var ErrEmpty = errors.New("pool: no value available")

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 10

// Bounded is a fixed-capacity circular buffer. When full, pushing a new
// value evicts the oldest one (FIFO), so memory stays O(capacity) no matter
// how long the owning virtual user runs.
//
// A Bounded is owned by a single virtual user and is not safe for
// concurrent use.
type Bounded[T any] struct {
	items    []T
	head     int // next write position
	tail     int // oldest value
	count    int
	capacity int

	evicted int64
}

// NewBounded creates an empty pool with the given capacity.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bounded[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends a value, evicting the oldest value first if the pool is full.
// It reports whether an eviction happened.
func (b *Bounded[T]) Push(value T) bool {
	evicted := false
	if b.count >= b.capacity {
		b.evictOne()
		evicted = true
	}

	b.items[b.head] = value
	b.head = (b.head + 1) % b.capacity
	b.count++
	return evicted
}

// evictOne drops the value at the tail.
func (b *Bounded[T]) evictOne() {
	if b.count == 0 {
		return
	}
	var zero T
	b.items[b.tail] = zero
	b.tail = (b.tail + 1) % b.capacity
	b.count--
	b.evicted++
}

// At returns the i-th value counting from the oldest one.
func (b *Bounded[T]) At(i int) (T, error) {
	var zero T
	if b.count == 0 {
		return zero, ErrEmpty
	}
	if i < 0 || i >= b.count {
		return zero, errors.New("pool: index out of range")
	}
	return b.items[(b.tail+i)%b.capacity], nil
}

// Pick returns a value selected by pick, which receives the current length
// and must return an index in [0, n). Callers pass their own random source
// so selection stays reproducible under a fixed seed.
func (b *Bounded[T]) Pick(pick func(n int) int) (T, error) {
	var zero T
	if b.count == 0 {
		return zero, ErrEmpty
	}
	return b.At(pick(b.count))
}

// Oldest returns the value that would be evicted next.
func (b *Bounded[T]) Oldest() (T, error) {
	return b.At(0)
}

// Newest returns the most recently pushed value.
func (b *Bounded[T]) Newest() (T, error) {
	return b.At(b.count - 1)
}

// Contains reports whether any stored value satisfies match.
func (b *Bounded[T]) Contains(match func(T) bool) bool {
	for i := 0; i < b.count; i++ {
		if match(b.items[(b.tail+i)%b.capacity]) {
			return true
		}
	}
	return false
}

// Values returns a copy of the stored values, oldest first.
func (b *Bounded[T]) Values() []T {
	out := make([]T, 0, b.count)
	for i := 0; i < b.count; i++ {
		out = append(out, b.items[(b.tail+i)%b.capacity])
	}
	return out
}

// Len returns the number of stored values.
func (b *Bounded[T]) Len() int {
	return b.count
}

// Cap returns the pool capacity.
func (b *Bounded[T]) Cap() int {
	return b.capacity
}

// IsEmpty reports whether the pool holds no values.
func (b *Bounded[T]) IsEmpty() bool {
	return b.count == 0
}

// Evictions returns the number of values dropped to make room.
func (b *Bounded[T]) Evictions() int64 {
	return b.evicted
}

// Clear removes all values and resets the eviction count.
func (b *Bounded[T]) Clear() {
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head, b.tail, b.count = 0, 0, 0
	b.evicted = 0
}
