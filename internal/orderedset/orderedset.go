// Package orderedset resolves a set of named items into an order that honors
// "comes before" / "comes after" constraints between them.
//
// Items without a mutual constraint keep their insertion order, so identical
// input always yields identical output:
//
//	set := orderedset.New[string]()
//	_ = set.Add("install", "npm install", orderedset.Constraints{})
//	_ = set.Add("codegen", "prisma generate", orderedset.Constraints{ComesAfter: []string{"install"}})
//	items, err := set.Items()
package orderedset

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateKey = errors.New("duplicate key")
	ErrCycle        = errors.New("cycle detected")
)

// DuplicateKeyError is returned when a key is registered twice.
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s: %q is already registered", ErrDuplicateKey, e.Key)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

// CycleError names the keys that participate in a constraint cycle.
// Keys lists the cycle in traversal order with the first key repeated at the end.
type CycleError struct {
	Keys []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycle, strings.Join(e.Keys, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// Constraints declares ordering relative to other keys.
// Keys that are never added to the set are ignored.
type Constraints struct {
	ComesBefore []string
	ComesAfter  []string
}

type entry[T any] struct {
	key         string
	value       T
	constraints Constraints
}

// Set is an insertion-ordered collection of keyed items with ordering constraints.
// A Set is not safe for concurrent mutation.
type Set[T any] struct {
	entries []entry[T]
	index   map[string]int
}

// New creates an empty set.
func New[T any]() *Set[T] {
	return &Set[T]{index: make(map[string]int)}
}

// Add registers an item. Registering the same key twice is an error.
func (s *Set[T]) Add(key string, value T, c Constraints) error {
	if _, exists := s.index[key]; exists {
		return &DuplicateKeyError{Key: key}
	}
	s.index[key] = len(s.entries)
	s.entries = append(s.entries, entry[T]{key: key, value: value, constraints: c})
	return nil
}

// Has reports whether key was added.
func (s *Set[T]) Has(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Len returns the number of items.
func (s *Set[T]) Len() int {
	return len(s.entries)
}

// Items returns every value ordered consistently with all constraints.
func (s *Set[T]) Items() ([]T, error) {
	order, err := s.sort()
	if err != nil {
		return nil, err
	}
	items := make([]T, len(order))
	for i, idx := range order {
		items[i] = s.entries[idx].value
	}
	return items, nil
}

// Keys returns every key ordered consistently with all constraints.
func (s *Set[T]) Keys() ([]string, error) {
	order, err := s.sort()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(order))
	for i, idx := range order {
		keys[i] = s.entries[idx].key
	}
	return keys, nil
}

// edges returns, per entry index, the indices that must come after it.
func (s *Set[T]) edges() [][]int {
	out := make([][]int, len(s.entries))
	seen := make(map[[2]int]bool)

	// Self edges are kept: they surface as one-item cycles.
	addEdge := func(from, to int) {
		pair := [2]int{from, to}
		if seen[pair] {
			return
		}
		seen[pair] = true
		out[from] = append(out[from], to)
	}

	for i, e := range s.entries {
		for _, before := range e.constraints.ComesBefore {
			if j, ok := s.index[before]; ok {
				addEdge(i, j)
			}
		}
		for _, after := range e.constraints.ComesAfter {
			if j, ok := s.index[after]; ok {
				addEdge(j, i)
			}
		}
	}
	return out
}

// sort runs Kahn's algorithm, always emitting the ready entry with the
// lowest insertion index.
func (s *Set[T]) sort() ([]int, error) {
	n := len(s.entries)
	out := s.edges()

	indeg := make([]int, n)
	for _, targets := range out {
		for _, t := range targets {
			indeg[t]++
		}
	}

	emitted := make([]bool, n)
	order := make([]int, 0, n)

	for len(order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !emitted[i] && indeg[i] == 0 {
				next = i
				break
			}
		}
		if next == -1 {
			return nil, &CycleError{Keys: s.findCycle(out, emitted)}
		}

		emitted[next] = true
		order = append(order, next)
		for _, t := range out[next] {
			indeg[t]--
		}
	}

	return order, nil
}

// findCycle locates one cycle among the entries that could not be emitted.
func (s *Set[T]) findCycle(out [][]int, emitted []bool) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(s.entries))
	var stack []int
	var cycle []int

	var visit func(i int) bool
	visit = func(i int) bool {
		state[i] = visiting
		stack = append(stack, i)
		for _, t := range out[i] {
			if emitted[t] {
				continue
			}
			switch state[t] {
			case visiting:
				for pos, v := range stack {
					if v == t {
						cycle = append(append([]int{}, stack[pos:]...), t)
						return true
					}
				}
			case unvisited:
				if visit(t) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = done
		return false
	}

	for i := range s.entries {
		if !emitted[i] && state[i] == unvisited && visit(i) {
			break
		}
	}

	keys := make([]string, len(cycle))
	for i, idx := range cycle {
		keys[i] = s.entries[idx].key
	}
	return keys
}
