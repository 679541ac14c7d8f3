package orderedset

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_PreservesInsertionOrderWithoutConstraints(t *testing.T) {
	set := New[int]()
	for i, key := range []string{"c", "a", "b"} {
		require.NoError(t, set.Add(key, i, Constraints{}))
	}

	keys, err := set.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, keys)

	items, err := set.Items()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, items)
}

func TestSet_HonorsConstraints(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *Set[string])
		want  []string
	}{
		{
			name: "comes after",
			setup: func(s *Set[string]) {
				_ = s.Add("codegen", "codegen", Constraints{ComesAfter: []string{"install"}})
				_ = s.Add("install", "install", Constraints{})
			},
			want: []string{"install", "codegen"},
		},
		{
			name: "comes before",
			setup: func(s *Set[string]) {
				_ = s.Add("b", "b", Constraints{})
				_ = s.Add("a", "a", Constraints{ComesBefore: []string{"b"}})
			},
			want: []string{"a", "b"},
		},
		{
			name: "unconstrained items keep relative order",
			setup: func(s *Set[string]) {
				_ = s.Add("x", "x", Constraints{})
				_ = s.Add("late", "late", Constraints{ComesBefore: []string{"x"}})
				_ = s.Add("y", "y", Constraints{})
			},
			want: []string{"late", "x", "y"},
		},
		{
			name: "unknown keys are ignored",
			setup: func(s *Set[string]) {
				_ = s.Add("a", "a", Constraints{ComesAfter: []string{"missing"}})
				_ = s.Add("b", "b", Constraints{ComesBefore: []string{"also-missing"}})
			},
			want: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New[string]()
			tt.setup(s)
			got, err := s.Items()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSet_DuplicateKey(t *testing.T) {
	s := New[int]()
	require.NoError(t, s.Add("dup", 1, Constraints{}))

	err := s.Add("dup", 2, Constraints{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateKey))
	assert.Contains(t, err.Error(), `"dup"`)

	var dupErr *DuplicateKeyError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "dup", dupErr.Key)

	// The original registration is untouched
	items, err := s.Items()
	require.NoError(t, err)
	assert.Equal(t, []int{1}, items)
}

func TestSet_CycleNamesParticipants(t *testing.T) {
	s := New[string]()
	require.NoError(t, s.Add("free", "free", Constraints{}))
	require.NoError(t, s.Add("a", "a", Constraints{ComesBefore: []string{"b"}}))
	require.NoError(t, s.Add("b", "b", Constraints{ComesBefore: []string{"c"}}))
	require.NoError(t, s.Add("c", "c", Constraints{ComesBefore: []string{"a"}}))

	_, err := s.Items()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCycle))

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, cycleErr.Keys[:len(cycleErr.Keys)-1])
	assert.Equal(t, cycleErr.Keys[0], cycleErr.Keys[len(cycleErr.Keys)-1])
	assert.NotContains(t, cycleErr.Keys, "free")
}

func TestSet_SelfCycle(t *testing.T) {
	s := New[string]()
	require.NoError(t, s.Add("self", "self", Constraints{ComesAfter: []string{"self"}}))

	_, err := s.Keys()
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"self", "self"}, cycleErr.Keys)
}

func TestSet_RandomAcyclicConstraintsAreSatisfied(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		n := 2 + rng.Intn(12)
		// Constraints only point from lower to higher rank, so the graph is acyclic.
		rank := rng.Perm(n)
		keys := make([]string, n)
		for i := range keys {
			keys[i] = fmt.Sprintf("k%d", i)
		}

		type pair struct{ before, after string }
		var pairs []pair
		s := New[string]()
		for i := 0; i < n; i++ {
			var c Constraints
			for j := 0; j < n; j++ {
				if i == j || rng.Intn(4) != 0 {
					continue
				}
				if rank[i] < rank[j] {
					c.ComesBefore = append(c.ComesBefore, keys[j])
					pairs = append(pairs, pair{keys[i], keys[j]})
				} else {
					c.ComesAfter = append(c.ComesAfter, keys[j])
					pairs = append(pairs, pair{keys[j], keys[i]})
				}
			}
			require.NoError(t, s.Add(keys[i], keys[i], c))
		}

		got, err := s.Keys()
		require.NoError(t, err)
		require.Len(t, got, n)

		pos := make(map[string]int, n)
		for i, k := range got {
			pos[k] = i
		}
		for _, p := range pairs {
			assert.Less(t, pos[p.before], pos[p.after], "round %d: %s must come before %s", round, p.before, p.after)
		}

		// Deterministic across repeated calls
		again, err := s.Keys()
		require.NoError(t, err)
		assert.Equal(t, got, again)
	}
}
