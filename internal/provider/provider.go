// Package provider implements scoped dependency injection between generator tasks.
//
// A task exports typed values ("providers") at a scope; other tasks declare
// dependencies on provider types and receive the value that is visible to
// them. Visibility is decided on the generator tree:
//
//   - ScopeGenerator: only tasks of the exporting generator
//   - ScopePackage: every generator under the nearest package boundary
//   - ScopeProject: every generator in the tree
//
// Typed keys keep call sites type-safe:
//
//	var ProjectInfo = provider.NewType[*Info]("project-info")
//
//	task.Exports = map[string]provider.Export{"info": ProjectInfo.Export(provider.ScopeProject)}
//	task.Dependencies = map[string]provider.Dependency{"info": ProjectInfo.Dependency()}
//	info := provider.MustGet[*Info](deps, "info")
package provider

import (
	"fmt"
)

// Scope is the visibility radius of an exported provider.
// Larger values are visible to more of the tree.
type Scope int

const (
	ScopeGenerator Scope = iota
	ScopePackage
	ScopeProject
)

// String returns the scope name.
func (s Scope) String() string {
	switch s {
	case ScopeGenerator:
		return "generator"
	case ScopePackage:
		return "package"
	case ScopeProject:
		return "project"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// ParseScope converts a scope name to a Scope.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "generator", "":
		return ScopeGenerator, nil
	case "package":
		return ScopePackage, nil
	case "project":
		return ScopeProject, nil
	default:
		return 0, fmt.Errorf("unknown provider scope %q (expected generator, package or project)", s)
	}
}

// Type is a typed provider key.
type Type[T any] struct {
	name string
}

// NewType creates a provider key. Names must be unique across all generators.
func NewType[T any](name string) Type[T] {
	return Type[T]{name: name}
}

// Name returns the provider type name.
func (t Type[T]) Name() string {
	return t.name
}

// Export declares that a task exports this provider at scope.
func (t Type[T]) Export(scope Scope) Export {
	return Export{
		Type:  t.name,
		Scope: scope,
		accepts: func(v any) bool {
			_, ok := v.(T)
			return ok
		},
		typeName: fmt.Sprintf("%T", *new(T)),
	}
}

// Dependency declares a required dependency on this provider.
func (t Type[T]) Dependency() Dependency {
	return Dependency{Type: t.name}
}

// OptionalDependency declares a dependency that resolves to the zero value
// when no provider is visible.
func (t Type[T]) OptionalDependency() Dependency {
	return Dependency{Type: t.name, Optional: true}
}

// Export is a provider declaration attached to a task.
type Export struct {
	Type  string
	Scope Scope

	accepts  func(any) bool
	typeName string
}

// Accepts reports whether v has the Go type the provider was declared with.
func (e Export) Accepts(v any) bool {
	if e.accepts == nil {
		return true
	}
	return e.accepts(v)
}

// Dependency is a provider requirement attached to a task.
type Dependency struct {
	Type     string
	Optional bool
}

// Values maps a task's local dependency or export names to provider values.
type Values map[string]any

// Get returns the value stored under name converted to T.
func Get[T any](vals Values, name string) (T, bool) {
	var zero T
	raw, ok := vals[name]
	if !ok || raw == nil {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// MustGet returns the value stored under name converted to T.
// It panics when the value is missing or has another type; the executor
// reports such panics as task failures.
func MustGet[T any](vals Values, name string) T {
	raw, ok := vals[name]
	if !ok {
		panic(fmt.Sprintf("provider %q was not resolved", name))
	}
	v, ok := raw.(T)
	if !ok {
		panic(fmt.Sprintf("provider %q has type %T, want %T", name, raw, *new(T)))
	}
	return v
}
