package multiplexer

import "slices"

// orderedSet is a set that iterates in insertion order, which keeps output
// and reaping order deterministic.
type orderedSet[T comparable] struct {
	items []T
}

func (s *orderedSet[T]) add(v T) {
	if !slices.Contains(s.items, v) {
		s.items = append(s.items, v)
	}
}

func (s *orderedSet[T]) remove(v T) {
	s.items = slices.DeleteFunc(s.items, func(x T) bool { return x == v })
}

func (s *orderedSet[T]) has(v T) bool {
	return slices.Contains(s.items, v)
}

func (s *orderedSet[T]) len() int {
	return len(s.items)
}

// snapshot returns a copy safe to range over while the set is mutated
func (s *orderedSet[T]) snapshot() []T {
	return slices.Clone(s.items)
}

// drain returns the members and empties the set
func (s *orderedSet[T]) drain() []T {
	items := s.items
	s.items = nil
	return items
}
