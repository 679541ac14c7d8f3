package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/simonhull/baseplate/internal/schema"
)

// Generator is a composable unit that turns a validated config into tasks
// and default child descriptors.
type Generator struct {
	Name        string
	Description string

	// IsPackage marks instances as package boundaries for provider scoping.
	IsPackage bool

	// NewConfig returns a pointer to a config struct holding defaults.
	// Nil means the generator takes no config.
	NewConfig func() any

	// Schema registers custom validation tags or struct rules the config
	// struct relies on. It runs once, before any descriptor is validated.
	Schema func(r *schema.Registry) error

	// Instantiate creates the tasks and default children for one instance.
	Instantiate func(ic InstanceContext) (Instance, error)
}

// InstanceContext is what a generator sees when it is instantiated.
type InstanceContext struct {
	Name     string
	ID       string
	ParentID string
	Config   any
}

// Instance is the expansion of one descriptor.
type Instance struct {
	Tasks    []*Task
	Children []Descriptor
}

// Registry holds the generators available to an engine.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]*Generator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{generators: make(map[string]*Generator)}
}

// Register adds generators. Names must be unique.
func (r *Registry) Register(gens ...*Generator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, g := range gens {
		if g.Name == "" {
			return fmt.Errorf("generator has no name")
		}
		if g.Instantiate == nil {
			return fmt.Errorf("generator %q has no Instantiate function", g.Name)
		}
		if _, exists := r.generators[g.Name]; exists {
			return fmt.Errorf("generator %q already registered", g.Name)
		}
		r.generators[g.Name] = g
	}
	return nil
}

// Get returns the named generator.
func (r *Registry) Get(name string) (*Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generators[name]
	return g, ok
}

// List returns all generators sorted by name.
func (r *Registry) List() []*Generator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Generator, 0, len(r.generators))
	for _, g := range r.generators {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the sorted generator names.
func (r *Registry) Names() []string {
	list := r.List()
	names := make([]string, len(list))
	for i, g := range list {
		names[i] = g.Name
	}
	return names
}
