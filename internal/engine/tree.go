package engine

import (
	"errors"
	"fmt"

	"github.com/simonhull/baseplate/internal/schema"
)

// GeneratorEntry is one generator instance in the tree.
type GeneratorEntry struct {
	Index     int
	Parent    int
	ID        string
	Name      string
	Generator *Generator
	Config    any
	Children  []int
	Tasks     []*TaskEntry
	IsPackage bool
}

// Tree is an arena of generator entries addressed by index. Nodes are
// stored in pre-order; the root is at index 0.
type Tree struct {
	Nodes []*GeneratorEntry
}

// Root returns the root entry.
func (t *Tree) Root() *GeneratorEntry {
	if len(t.Nodes) == 0 {
		return nil
	}
	return t.Nodes[0]
}

// Parent returns the parent index of node, or -1 for the root.
func (t *Tree) Parent(node int) int {
	return t.Nodes[node].Parent
}

// IsPackage reports whether node is a package boundary.
func (t *Tree) IsPackage(node int) bool {
	return t.Nodes[node].IsPackage
}

// Node looks an entry up by ID.
func (t *Tree) Node(id string) (*GeneratorEntry, bool) {
	for _, n := range t.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

// Ancestors returns the indices from node's parent up to the root.
func (t *Tree) Ancestors(node int) []int {
	var out []int
	for p := t.Nodes[node].Parent; p >= 0; p = t.Nodes[p].Parent {
		out = append(out, p)
	}
	return out
}

// Tasks returns every task in pre-order tree traversal, each node's tasks
// in declaration order.
func (t *Tree) Tasks() []*TaskEntry {
	var out []*TaskEntry
	for _, n := range t.Nodes {
		out = append(out, n.Tasks...)
	}
	return out
}

// BuildTree expands root into a generator tree. Every validation failure
// across the tree is reported in one schema.ValidationErrors; other
// configuration errors are joined with it.
func (e *Engine) BuildTree(root Descriptor) (*Tree, error) {
	b := &treeBuilder{engine: e, tree: &Tree{}}
	if root.Name == "" && root.Generator == "" {
		return nil, fmt.Errorf("root descriptor names no generator")
	}
	b.build(root, -1)

	var errs []error
	if len(b.invalid) > 0 {
		errs = append(errs, b.invalid)
	}
	errs = append(errs, b.errs...)
	switch len(errs) {
	case 0:
		return b.tree, nil
	case 1:
		return nil, errs[0]
	default:
		return nil, errors.Join(errs...)
	}
}

type treeBuilder struct {
	engine  *Engine
	tree    *Tree
	invalid schema.ValidationErrors
	errs    []error
}

func (b *treeBuilder) build(d Descriptor, parent int) {
	name := d.InstanceName()
	id := name
	parentID := ""
	if parent >= 0 {
		parentID = b.tree.Nodes[parent].ID
		id = parentID + "/" + name
	}

	gen, ok := b.engine.registry.Get(d.Generator)
	if !ok {
		b.errs = append(b.errs, &UnknownGeneratorError{Instance: id, Generator: d.Generator})
		b.checkChildren(id, d.Children)
		return
	}

	cfg, ok := b.config(id, gen, d.Config)
	if !ok {
		b.checkChildren(id, d.Children)
		return
	}

	node := &GeneratorEntry{
		Index:     len(b.tree.Nodes),
		Parent:    parent,
		ID:        id,
		Name:      name,
		Generator: gen,
		Config:    cfg,
		IsPackage: gen.IsPackage,
	}
	b.tree.Nodes = append(b.tree.Nodes, node)
	if parent >= 0 {
		b.tree.Nodes[parent].Children = append(b.tree.Nodes[parent].Children, node.Index)
	}

	inst, err := gen.Instantiate(InstanceContext{Name: name, ID: id, ParentID: parentID, Config: cfg})
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("instantiate %s (%s): %w", id, gen.Name, err))
		return
	}

	seen := make(map[string]bool, len(inst.Tasks))
	for _, t := range inst.Tasks {
		switch {
		case t == nil || t.Name == "":
			b.errs = append(b.errs, fmt.Errorf("generator %s declares a task with no name", id))
			continue
		case seen[t.Name]:
			b.errs = append(b.errs, &DuplicateTaskError{Generator: id, Task: t.Name})
			continue
		}
		seen[t.Name] = true
		node.Tasks = append(node.Tasks, &TaskEntry{ID: id + "#" + t.Name, Node: node.Index, Task: t})
	}

	children, errs := overlayChildren(id, inst.Children, d.Children)
	b.errs = append(b.errs, errs...)
	for _, child := range children {
		b.build(child, node.Index)
	}
}

// checkChildren validates descriptors below an instance that could not be
// expanded, so their errors are reported in the same run.
func (b *treeBuilder) checkChildren(parentID string, children []Descriptor) {
	children, errs := overlayChildren(parentID, nil, children)
	b.errs = append(b.errs, errs...)
	for _, d := range children {
		id := parentID + "/" + d.InstanceName()
		gen, ok := b.engine.registry.Get(d.Generator)
		if !ok {
			b.errs = append(b.errs, &UnknownGeneratorError{Instance: id, Generator: d.Generator})
		} else {
			b.config(id, gen, d.Config)
		}
		b.checkChildren(id, d.Children)
	}
}

// config decodes and validates raw config for one instance.
func (b *treeBuilder) config(id string, gen *Generator, raw map[string]any) (any, bool) {
	if gen.NewConfig == nil {
		if len(raw) > 0 {
			b.invalid = append(b.invalid, schema.ValidationError{
				Field:   id,
				Message: fmt.Sprintf("generator %q takes no config", gen.Name),
			})
			return nil, false
		}
		return nil, true
	}

	cfg := gen.NewConfig()
	if err := schema.Decode(id, raw, cfg); err != nil {
		return nil, b.collect(err)
	}
	if err := b.engine.validator.Validate(id, cfg); err != nil {
		return nil, b.collect(err)
	}
	return cfg, true
}

func (b *treeBuilder) collect(err error) bool {
	var ve schema.ValidationErrors
	if errors.As(err, &ve) {
		b.invalid = append(b.invalid, ve...)
	} else {
		b.errs = append(b.errs, err)
	}
	return false
}
