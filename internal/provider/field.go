package provider

import (
	"errors"
	"fmt"
	"sync"
)

// ErrSealed is returned when a field is changed after its phase finished running.
var ErrSealed = errors.New("field is sealed")

// Sealer is implemented by provider values that become read-only once the
// run stage of their phase completes.
type Sealer interface {
	Seal()
}

// Field is a single value that dependents may set until it is sealed.
// The first caller to set a value owns it; a later set with a different
// value is rejected and names the owner.
type Field[T comparable] struct {
	mu     sync.RWMutex
	name   string
	value  T
	source string
	isSet  bool
	sealed bool
}

// NewField creates a field holding defaultValue until something sets it.
func NewField[T comparable](name string, defaultValue T) *Field[T] {
	return &Field[T]{name: name, value: defaultValue}
}

// Set assigns the field value on behalf of source.
func (f *Field[T]) Set(value T, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sealed {
		return fmt.Errorf("set %s from %s: %w", f.name, source, ErrSealed)
	}
	if f.isSet && f.value != value {
		return fmt.Errorf("set %s from %s: already set to %v by %s", f.name, source, f.value, f.source)
	}
	if !f.isSet {
		f.value = value
		f.source = source
		f.isSet = true
	}
	return nil
}

// Value returns the current value.
func (f *Field[T]) Value() T {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value
}

// IsSet reports whether any caller set the field.
func (f *Field[T]) IsSet() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.isSet
}

// Seal makes the field read-only.
func (f *Field[T]) Seal() {
	f.mu.Lock()
	f.sealed = true
	f.mu.Unlock()
}

// ReadOnly returns a view exposing only Get.
func (f *Field[T]) ReadOnly() ReadOnly[T] {
	return ReadOnly[T]{get: f.Value}
}

// ListField collects values appended by any number of dependents.
type ListField[T any] struct {
	mu     sync.RWMutex
	name   string
	items  []T
	sealed bool
}

// NewListField creates an empty list field.
func NewListField[T any](name string) *ListField[T] {
	return &ListField[T]{name: name}
}

// Append adds items in call order.
func (l *ListField[T]) Append(items ...T) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sealed {
		return fmt.Errorf("append to %s: %w", l.name, ErrSealed)
	}
	l.items = append(l.items, items...)
	return nil
}

// Values returns a copy of the collected items.
func (l *ListField[T]) Values() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

// Seal makes the list read-only.
func (l *ListField[T]) Seal() {
	l.mu.Lock()
	l.sealed = true
	l.mu.Unlock()
}

// ReadOnly returns a view exposing only Get.
func (l *ListField[T]) ReadOnly() ReadOnly[[]T] {
	return ReadOnly[[]T]{get: l.Values}
}

// ReadOnly is a getter-only view of a value.
type ReadOnly[T any] struct {
	get func() T
}

// Static wraps a fixed value in a read-only view.
func Static[T any](v T) ReadOnly[T] {
	return ReadOnly[T]{get: func() T { return v }}
}

// Get returns the current value. A zero ReadOnly returns the zero value.
func (r ReadOnly[T]) Get() T {
	if r.get == nil {
		var zero T
		return zero
	}
	return r.get()
}
