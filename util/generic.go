// util/generic.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"maps"
	"slices"

	"golang.org/x/exp/constraints"
)

///////////////////////////////////////////////////////////////////////////
// RingBuffer

// RingBuffer holds at most a fixed number of items; once full, adding an
// item discards the oldest one.
type RingBuffer[V any] struct {
	entries []V
	max     int
	index   int
}

func NewRingBuffer[V any](capacity int) *RingBuffer[V] {
	return &RingBuffer[V]{max: max(capacity, 1)}
}

func (r *RingBuffer[V]) Add(values ...V) {
	for _, v := range values {
		if len(r.entries) < r.max {
			r.entries = append(r.entries, v)
		} else {
			// Once full, entries[index%max] is the oldest item.
			r.entries[r.index%r.max] = v
		}
		r.index++
	}
}

func (r *RingBuffer[V]) Size() int {
	return len(r.entries)
}

// Get returns the i-th item, where 0 is the oldest.
func (r *RingBuffer[V]) Get(i int) V {
	if len(r.entries) < r.max {
		return r.entries[i]
	}
	return r.entries[(r.index+i)%r.max]
}

// Items returns a copy of the contents ordered oldest to newest.
func (r *RingBuffer[V]) Items() []V {
	items := make([]V, r.Size())
	for i := range items {
		items[i] = r.Get(i)
	}
	return items
}

///////////////////////////////////////////////////////////////////////////
// Slices and maps

// SortedMapKeys returns the keys of the given map, sorted from low to high.
func SortedMapKeys[K constraints.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}

// MapSlice returns the slice that is the result of applying the provided
// xform function to all the elements of the given slice.
func MapSlice[F, T any](from []F, xform func(F) T) []T {
	to := make([]T, 0, len(from))
	for _, v := range from {
		to = append(to, xform(v))
	}
	return to
}

// FilterSlice returns a newly allocated slice holding the elements of s
// for which pred returns true.
func FilterSlice[V any](s []V, pred func(V) bool) []V {
	var filtered []V
	for _, item := range s {
		if pred(item) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// Select returns a if sel is true and b otherwise.
func Select[T any](sel bool, a, b T) T {
	if sel {
		return a
	}
	return b
}
