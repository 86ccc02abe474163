// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package container

import (
	"iter"
	"maps"
	"sync"
)

// Set is a concurrency-safe generic set.
type Set[T comparable] struct {
	mu    sync.RWMutex
	items map[T]struct{}
}

// NewSet creates a new set.
func NewSet[T comparable]() *Set[T] {
	return &Set[T]{
		items: make(map[T]struct{}),
	}
}

// Add adds an element to the set, reporting whether it was newly added.
func (s *Set[T]) Add(value T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[value]; ok {
		return false
	}
	s.items[value] = struct{}{}
	return true
}

// Remove removes an element from the set.
func (s *Set[T]) Remove(value T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, value)
}

// Contains checks if an element is in the set.
func (s *Set[T]) Contains(value T) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.items[value]
	return exists
}

// Size returns the number of elements in the set.
func (s *Set[T]) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items)
}

// All iterates over a snapshot of the set.
func (s *Set[T]) All() iter.Seq[T] {
	s.mu.RLock()
	snapshot := maps.Clone(s.items)
	s.mu.RUnlock()

	return maps.Keys(snapshot)
}
