package provider

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrDuplicateProvider = errors.New("duplicate provider")
	ErrMissingProvider   = errors.New("missing provider")
)

// Tree is the view of the generator tree the registry needs: parent links
// and package boundaries, addressed by arena index.
type Tree interface {
	Parent(node int) int
	IsPackage(node int) bool
}

// Contributor identifies the task that exported a provider.
type Contributor struct {
	Task string
	Node int
}

// Registration is one declared provider and, once its task has run, its value.
type Registration struct {
	Type        string
	Scope       Scope
	Contributor Contributor
	Export      Export

	value any
	set   bool
}

// Value returns the exported value and whether it has been set.
func (r *Registration) Value() (any, bool) {
	return r.value, r.set
}

// DuplicateProviderError reports two providers of one type that would be
// visible to the same dependents at the same scope.
type DuplicateProviderError struct {
	Type     string
	Scope    Scope
	Existing Contributor
	Conflict Contributor
}

func (e *DuplicateProviderError) Error() string {
	return fmt.Sprintf("%s: %q at %s scope is exported by both %s and %s",
		ErrDuplicateProvider, e.Type, e.Scope, e.Existing.Task, e.Conflict.Task)
}

func (e *DuplicateProviderError) Unwrap() error { return ErrDuplicateProvider }

// MissingProviderError reports a required dependency with no visible provider.
type MissingProviderError struct {
	Task     string
	Provider string
}

func (e *MissingProviderError) Error() string {
	return fmt.Sprintf("%s: task %s depends on %q but no visible task exports it",
		ErrMissingProvider, e.Task, e.Provider)
}

func (e *MissingProviderError) Unwrap() error { return ErrMissingProvider }

type regKey struct {
	typ    string
	scope  Scope
	region int
}

// Registry stores provider declarations keyed by visibility region.
//
// Declarations happen while a run is planned; values are filled in as tasks
// complete. All mutation goes through one writer at a time.
type Registry struct {
	tree Tree

	mu      sync.RWMutex
	entries map[regKey]*Registration
	order   []*Registration
}

// NewRegistry creates a registry over tree.
func NewRegistry(tree Tree) *Registry {
	return &Registry{
		tree:    tree,
		entries: make(map[regKey]*Registration),
	}
}

// PackageRoot returns the nearest package boundary at or above node.
// The root node acts as the boundary when no ancestor declares one.
func (r *Registry) PackageRoot(node int) int {
	for n := node; ; {
		if r.tree.IsPackage(n) {
			return n
		}
		parent := r.tree.Parent(n)
		if parent < 0 {
			return n
		}
		n = parent
	}
}

func (r *Registry) root(node int) int {
	for {
		parent := r.tree.Parent(node)
		if parent < 0 {
			return node
		}
		node = parent
	}
}

// region returns the node whose subtree (or, for generator scope, which node)
// a provider exported from node at scope is visible in.
func (r *Registry) region(node int, scope Scope) int {
	switch scope {
	case ScopePackage:
		return r.PackageRoot(node)
	case ScopeProject:
		return r.root(node)
	default:
		return node
	}
}

// Declare registers an export. A second export of the same type whose
// visibility region coincides at the same scope is rejected.
func (r *Registry) Declare(exp Export, c Contributor) (*Registration, error) {
	key := regKey{typ: exp.Type, scope: exp.Scope, region: r.region(c.Node, exp.Scope)}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[key]; ok {
		return nil, &DuplicateProviderError{
			Type:     exp.Type,
			Scope:    exp.Scope,
			Existing: existing.Contributor,
			Conflict: c,
		}
	}

	reg := &Registration{
		Type:        exp.Type,
		Scope:       exp.Scope,
		Contributor: c,
		Export:      exp,
	}
	r.entries[key] = reg
	r.order = append(r.order, reg)
	return reg, nil
}

// Resolve finds the provider of typ visible to requester. The narrowest
// scope wins: a generator-local export shadows a package export, which
// shadows a project export. Package exports are searched from the nearest
// enclosing package outwards, so an inner package shadows an outer one.
func (r *Registry) Resolve(typ string, requester int) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if reg, ok := r.entries[regKey{typ: typ, scope: ScopeGenerator, region: requester}]; ok {
		return reg, true
	}
	for _, pkg := range r.packageChain(requester) {
		if reg, ok := r.entries[regKey{typ: typ, scope: ScopePackage, region: pkg}]; ok {
			return reg, true
		}
	}
	reg, ok := r.entries[regKey{typ: typ, scope: ScopeProject, region: r.root(requester)}]
	return reg, ok
}

// packageChain returns the package boundaries enclosing node, nearest
// first, ending at the root.
func (r *Registry) packageChain(node int) []int {
	var chain []int
	for n := node; n >= 0; n = r.tree.Parent(n) {
		n = r.PackageRoot(n)
		chain = append(chain, n)
	}
	return chain
}

// Set stores the value of a declared provider.
func (r *Registry) Set(reg *Registration, value any) error {
	if !reg.Export.Accepts(value) {
		return fmt.Errorf("provider %q exported by %s has type %T, want %s",
			reg.Type, reg.Contributor.Task, value, reg.Export.typeName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if reg.set {
		return fmt.Errorf("provider %q exported by %s was already set", reg.Type, reg.Contributor.Task)
	}
	reg.value = value
	reg.set = true
	return nil
}

// Registrations returns every declaration in declaration order.
func (r *Registry) Registrations() []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Registration, len(r.order))
	copy(out, r.order)
	return out
}

// Types returns the sorted provider type names that have been declared.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var names []string
	for _, reg := range r.order {
		if !seen[reg.Type] {
			seen[reg.Type] = true
			names = append(names, reg.Type)
		}
	}
	sort.Strings(names)
	return names
}
