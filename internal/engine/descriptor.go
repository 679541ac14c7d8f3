package engine

import (
	"cmp"
	"maps"
)

// Descriptor is the declarative input for one generator instance.
//
// Name identifies the instance among its siblings and defaults to the
// generator name. Children listed here overlay the children a generator
// asks for by default: a child with a matching name merges its config over
// the default one, a child with Disabled set removes it, and any other child
// is appended.
type Descriptor struct {
	Name      string         `yaml:"name,omitempty"`
	Generator string         `yaml:"generator"`
	Config    map[string]any `yaml:"config,omitempty"`
	Children  []Descriptor   `yaml:"children,omitempty"`
	Disabled  bool           `yaml:"disabled,omitempty"`
}

// InstanceName returns the name the instance is addressed by.
func (d Descriptor) InstanceName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Generator
}

// overlayChildren merges caller-supplied children over a generator's
// defaults and drops disabled entries. Duplicate instance names within
// either list are reported and the later entry is dropped.
func overlayChildren(parentID string, defaults, overrides []Descriptor) ([]Descriptor, []error) {
	var errs []error
	merged := mergeLists(parentID, defaults, overrides, &errs)

	out := merged[:0]
	for _, d := range merged {
		if !d.Disabled {
			out = append(out, d)
		}
	}
	return out, errs
}

func mergeLists(parentID string, defaults, overrides []Descriptor, errs *[]error) []Descriptor {
	dedupe := func(list []Descriptor) []Descriptor {
		seen := make(map[string]bool, len(list))
		out := make([]Descriptor, 0, len(list))
		for _, d := range list {
			name := d.InstanceName()
			if seen[name] {
				*errs = append(*errs, &DuplicateGeneratorError{Parent: parentID, Name: name})
				continue
			}
			seen[name] = true
			out = append(out, d)
		}
		return out
	}
	defaults = dedupe(defaults)
	overrides = dedupe(overrides)

	byName := make(map[string]Descriptor, len(overrides))
	for _, o := range overrides {
		byName[o.InstanceName()] = o
	}

	merged := make([]Descriptor, 0, len(defaults)+len(overrides))
	used := make(map[string]bool)
	for _, d := range defaults {
		name := d.InstanceName()
		o, ok := byName[name]
		if !ok {
			merged = append(merged, d)
			continue
		}
		used[name] = true
		merged = append(merged, Descriptor{
			Name:      name,
			Generator: cmp.Or(o.Generator, d.Generator),
			Config:    mergeConfig(d.Config, o.Config),
			Children:  mergeLists(parentID+"/"+name, d.Children, o.Children, errs),
			Disabled:  o.Disabled,
		})
	}
	for _, o := range overrides {
		if !used[o.InstanceName()] {
			merged = append(merged, o)
		}
	}
	return merged
}

// mergeConfig overlays override onto base, merging nested maps key by key.
func mergeConfig(base, override map[string]any) map[string]any {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(override))
	maps.Copy(out, base)
	for k, v := range override {
		if nested, ok := v.(map[string]any); ok {
			if existing, ok := out[k].(map[string]any); ok {
				out[k] = mergeConfig(existing, nested)
				continue
			}
		}
		out[k] = v
	}
	return out
}
