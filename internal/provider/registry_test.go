package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTree is a parent-index arena:
//
//	0 root
//	├── 1 pkg-a (package)
//	│   ├── 2 leaf-a
//	│   └── 5 pkg-inner (package)
//	│       └── 6 leaf-inner
//	└── 3 pkg-b (package)
//	    └── 4 leaf-b
type testTree struct {
	parents  []int
	packages map[int]bool
}

func (t testTree) Parent(node int) int      { return t.parents[node] }
func (t testTree) IsPackage(node int) bool { return t.packages[node] }

func newTestTree() testTree {
	return testTree{
		parents:  []int{-1, 0, 1, 0, 3, 1, 5},
		packages: map[int]bool{1: true, 3: true, 5: true},
	}
}

var nameType = NewType[string]("name")

func TestRegistry_ResolveByScope(t *testing.T) {
	tests := []struct {
		name      string
		exporter  int
		scope     Scope
		requester int
		visible   bool
	}{
		{"generator scope visible to self", 2, ScopeGenerator, 2, true},
		{"generator scope hidden from parent", 2, ScopeGenerator, 1, false},
		{"package scope visible in package", 2, ScopePackage, 1, true},
		{"package scope visible to sibling leaf", 1, ScopePackage, 2, true},
		{"package scope hidden from other package", 2, ScopePackage, 4, false},
		{"package scope hidden from root", 2, ScopePackage, 0, false},
		{"outer package scope visible inside nested package", 1, ScopePackage, 6, true},
		{"outer package scope visible to nested package root", 2, ScopePackage, 5, true},
		{"nested package scope hidden from outer package", 6, ScopePackage, 2, false},
		{"root package scope visible inside packages", 0, ScopePackage, 4, true},
		{"project scope visible everywhere", 4, ScopeProject, 2, true},
		{"project scope visible to root", 4, ScopeProject, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(newTestTree())
			_, err := r.Declare(nameType.Export(tt.scope), Contributor{Task: "exporter", Node: tt.exporter})
			require.NoError(t, err)

			reg, ok := r.Resolve("name", tt.requester)
			assert.Equal(t, tt.visible, ok)
			if tt.visible {
				assert.Equal(t, "exporter", reg.Contributor.Task)
			}
		})
	}
}

func TestRegistry_NarrowestScopeWins(t *testing.T) {
	r := NewRegistry(newTestTree())
	_, err := r.Declare(nameType.Export(ScopeProject), Contributor{Task: "root#name", Node: 0})
	require.NoError(t, err)
	_, err = r.Declare(nameType.Export(ScopePackage), Contributor{Task: "pkg-a#name", Node: 1})
	require.NoError(t, err)

	reg, ok := r.Resolve("name", 2)
	require.True(t, ok)
	assert.Equal(t, "pkg-a#name", reg.Contributor.Task)

	reg, ok = r.Resolve("name", 4)
	require.True(t, ok)
	assert.Equal(t, "root#name", reg.Contributor.Task)
}

func TestRegistry_NestedPackageShadowsOuter(t *testing.T) {
	r := NewRegistry(newTestTree())
	_, err := r.Declare(nameType.Export(ScopePackage), Contributor{Task: "pkg-a#name", Node: 1})
	require.NoError(t, err)
	_, err = r.Declare(nameType.Export(ScopePackage), Contributor{Task: "pkg-inner#name", Node: 5})
	require.NoError(t, err)

	reg, ok := r.Resolve("name", 6)
	require.True(t, ok)
	assert.Equal(t, "pkg-inner#name", reg.Contributor.Task)

	reg, ok = r.Resolve("name", 2)
	require.True(t, ok)
	assert.Equal(t, "pkg-a#name", reg.Contributor.Task)
}

func TestRegistry_DuplicateProvider(t *testing.T) {
	r := NewRegistry(newTestTree())
	_, err := r.Declare(nameType.Export(ScopePackage), Contributor{Task: "pkg-a#one", Node: 1})
	require.NoError(t, err)

	_, err = r.Declare(nameType.Export(ScopePackage), Contributor{Task: "leaf-a#two", Node: 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateProvider))

	var dup *DuplicateProviderError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "pkg-a#one", dup.Existing.Task)
	assert.Equal(t, "leaf-a#two", dup.Conflict.Task)
	assert.Contains(t, err.Error(), "pkg-a#one")
	assert.Contains(t, err.Error(), "leaf-a#two")

	// Same type in a different package does not collide
	_, err = r.Declare(nameType.Export(ScopePackage), Contributor{Task: "leaf-b#three", Node: 4})
	assert.NoError(t, err)
}

func TestRegistry_SetChecksType(t *testing.T) {
	r := NewRegistry(newTestTree())
	reg, err := r.Declare(nameType.Export(ScopeProject), Contributor{Task: "root#name", Node: 0})
	require.NoError(t, err)

	err = r.Set(reg, 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want string")

	require.NoError(t, r.Set(reg, "baseplate"))
	v, ok := reg.Value()
	assert.True(t, ok)
	assert.Equal(t, "baseplate", v)

	assert.Error(t, r.Set(reg, "again"))
}

func TestRegistry_PackageRootFallsBackToRoot(t *testing.T) {
	r := NewRegistry(testTree{parents: []int{-1, 0, 1}})
	assert.Equal(t, 0, r.PackageRoot(2))
}

func TestGetAndMustGet(t *testing.T) {
	vals := Values{"name": "x", "count": 3}

	s, ok := Get[string](vals, "name")
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	_, ok = Get[string](vals, "count")
	assert.False(t, ok)

	_, ok = Get[string](vals, "missing")
	assert.False(t, ok)

	assert.Equal(t, 3, MustGet[int](vals, "count"))
	assert.Panics(t, func() { MustGet[int](vals, "missing") })
	assert.Panics(t, func() { MustGet[int](vals, "name") })
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("package")
	require.NoError(t, err)
	assert.Equal(t, ScopePackage, s)
	assert.Equal(t, "package", s.String())

	_, err = ParseScope("galaxy")
	assert.Error(t, err)
}
