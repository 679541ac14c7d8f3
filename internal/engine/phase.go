package engine

import (
	"fmt"

	"github.com/simonhull/baseplate/internal/orderedset"
)

// TaskPhase is a named scheduling bucket shared by tasks across the tree.
//
// A phase runs after every phase in ConsumesOutputFrom and before every
// phase in AddsDynamicTasksTo. Tasks reference phases by pointer; two
// distinct phase values with one name are a configuration error.
type TaskPhase struct {
	Name               string
	ConsumesOutputFrom []*TaskPhase
	AddsDynamicTasksTo []*TaskPhase
}

// String returns the phase name. The nil phase is the implicit default.
func (p *TaskPhase) String() string {
	if p == nil {
		return "default"
	}
	return p.Name
}

// SortPhases returns the phases referenced by tasks, directly or through
// another phase's constraints, ordered so producers run before consumers.
// Tasks without a phase belong to the implicit default phase, which runs
// before all of them and is not included.
func SortPhases(tasks []*TaskEntry) ([]*TaskPhase, error) {
	byName := make(map[string]*TaskPhase)
	var found []*TaskPhase

	var visit func(p *TaskPhase) error
	visit = func(p *TaskPhase) error {
		if p == nil {
			return nil
		}
		if p.Name == "" {
			return fmt.Errorf("task phase has no name")
		}
		if existing, ok := byName[p.Name]; ok {
			if existing != p {
				return &DuplicatePhaseError{Name: p.Name}
			}
			return nil
		}
		byName[p.Name] = p
		found = append(found, p)
		for _, q := range p.ConsumesOutputFrom {
			if err := visit(q); err != nil {
				return err
			}
		}
		for _, q := range p.AddsDynamicTasksTo {
			if err := visit(q); err != nil {
				return err
			}
		}
		return nil
	}

	for _, t := range tasks {
		if err := visit(t.Phase); err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ID, err)
		}
	}

	set := orderedset.New[*TaskPhase]()
	for _, p := range found {
		c := orderedset.Constraints{
			ComesAfter:  phaseNames(p.ConsumesOutputFrom),
			ComesBefore: phaseNames(p.AddsDynamicTasksTo),
		}
		if err := set.Add(p.Name, p, c); err != nil {
			return nil, err
		}
	}

	sorted, err := set.Items()
	if err != nil {
		return nil, fmt.Errorf("sort task phases: %w", err)
	}
	return sorted, nil
}

func phaseNames(phases []*TaskPhase) []string {
	names := make([]string, 0, len(phases))
	for _, p := range phases {
		if p != nil {
			names = append(names, p.Name)
		}
	}
	return names
}
