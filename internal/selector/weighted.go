// Package selector provides seedable weighted random selection over a
// static table.
package selector

import (
	"errors"
	"fmt"
)

// Errors returned by the selector package.
var (
	// ErrNoEntries is returned when no entry has a positive weight.
	ErrNoEntries = errors.New("selector: no entries available")
	// ErrInvalidWeight is returned when an entry has a negative weight.
	ErrInvalidWeight = errors.New("selector: invalid weight")
)

// IntnFunc returns a uniform integer in [0, n).
type IntnFunc func(n int) int

// Entry is a value with its relative weight.
type Entry[T any] struct {
	Name   string
	Value  T
	Weight int
}

// weightedEntry is an entry in the cumulative selection table.
type weightedEntry[T any] struct {
	entry            Entry[T]
	cumulativeWeight int
}

// Weighted picks entries with probability weight / sum(weights). The
// table is immutable after construction, so a Weighted may be shared; the
// random source passed to Select is what must stay per caller.
type Weighted[T any] struct {
	entries     []weightedEntry[T]
	totalWeight int
}

// NewWeighted builds a selector. Entries with weight zero are kept out of
// the table; negative weights are rejected.
func NewWeighted[T any](entries []Entry[T]) (*Weighted[T], error) {
	w := &Weighted[T]{
		entries: make([]weightedEntry[T], 0, len(entries)),
	}
	for _, e := range entries {
		if e.Weight < 0 {
			return nil, fmt.Errorf("%w: %q has weight %d", ErrInvalidWeight, e.Name, e.Weight)
		}
		if e.Weight == 0 {
			continue
		}
		w.totalWeight += e.Weight
		w.entries = append(w.entries, weightedEntry[T]{
			entry:            e,
			cumulativeWeight: w.totalWeight,
		})
	}
	if w.totalWeight == 0 {
		return nil, ErrNoEntries
	}
	return w, nil
}

// Select draws one entry using intn as the random source.
func (w *Weighted[T]) Select(intn IntnFunc) Entry[T] {
	target := intn(w.totalWeight)

	// Binary search for the first entry whose cumulative weight exceeds target.
	low, high := 0, len(w.entries)-1
	for low < high {
		mid := (low + high) / 2
		if w.entries[mid].cumulativeWeight <= target {
			low = mid + 1
		} else {
			high = mid
		}
	}
	return w.entries[low].entry
}

// Entries returns the selectable entries in table order.
func (w *Weighted[T]) Entries() []Entry[T] {
	out := make([]Entry[T], len(w.entries))
	for i, e := range w.entries {
		out[i] = e.entry
	}
	return out
}

// TotalWeight returns the sum of all weights.
func (w *Weighted[T]) TotalWeight() int {
	return w.totalWeight
}

// Probability returns the selection probability of the named entry, or 0
// if it is not selectable.
func (w *Weighted[T]) Probability(name string) float64 {
	for _, e := range w.entries {
		if e.entry.Name == name {
			return float64(e.entry.Weight) / float64(w.totalWeight)
		}
	}
	return 0
}
