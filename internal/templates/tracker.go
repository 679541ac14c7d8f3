package templates

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrDuplicateSingleton is the sentinel behind DuplicateSingletonError.
var ErrDuplicateSingleton = errors.New("duplicate singleton template")

// DuplicateSingletonError reports a singleton template found at two paths.
type DuplicateSingletonError struct {
	Generator string
	Template  string
	Paths     [2]string
}

func (e *DuplicateSingletonError) Error() string {
	return fmt.Sprintf("%s: %s/%s is rendered at both %s and %s",
		ErrDuplicateSingleton, e.Generator, e.Template, e.Paths[0], e.Paths[1])
}

func (e *DuplicateSingletonError) Unwrap() error { return ErrDuplicateSingleton }

// ErrKindMismatch is the sentinel behind KindMismatchError.
var ErrKindMismatch = errors.New("template kind mismatch")

// KindMismatchError reports one file recorded under two template kinds.
type KindMismatchError struct {
	Generator string
	Template  string
	Path      string
	Kinds     [2]Kind
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("%s: %s/%s at %s is both %s and %s",
		ErrKindMismatch, e.Generator, e.Template, e.Path, e.Kinds[0], e.Kinds[1])
}

func (e *KindMismatchError) Unwrap() error { return ErrKindMismatch }

// Source is a project file produced by a template.
type Source struct {
	Path     string
	ModTime  time.Time
	Metadata Metadata
}

// Tracker consolidates sources so each template maps to one file.
type Tracker struct {
	sources map[string]Source
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{sources: make(map[string]Source)}
}

// Add records src. A singleton seen twice is an error, as is one path
// recorded under two kinds. For instance templates the most recently
// modified file wins, ties going to the lexically smallest path.
func (t *Tracker) Add(src Source) error {
	key := src.Metadata.Key()
	existing, ok := t.sources[key]
	if !ok {
		t.sources[key] = src
		return nil
	}
	if existing.Path == src.Path {
		if existing.Metadata.Kind != src.Metadata.Kind {
			return &KindMismatchError{
				Generator: src.Metadata.Generator,
				Template:  src.Metadata.Template,
				Path:      src.Path,
				Kinds:     [2]Kind{existing.Metadata.Kind, src.Metadata.Kind},
			}
		}
		return nil
	}

	if src.Metadata.Kind == KindSingleton || existing.Metadata.Kind == KindSingleton {
		paths := [2]string{existing.Path, src.Path}
		if paths[1] < paths[0] {
			paths[0], paths[1] = paths[1], paths[0]
		}
		return &DuplicateSingletonError{
			Generator: src.Metadata.Generator,
			Template:  src.Metadata.Template,
			Paths:     paths,
		}
	}

	if newer(src, existing) {
		t.sources[key] = src
	}
	return nil
}

func newer(a, b Source) bool {
	if !a.ModTime.Equal(b.ModTime) {
		return a.ModTime.After(b.ModTime)
	}
	return a.Path < b.Path
}

// Get returns the source recorded for a generator template.
func (t *Tracker) Get(generator, template string) (Source, bool) {
	src, ok := t.sources[Metadata{Generator: generator, Template: template}.Key()]
	return src, ok
}

// Len returns the number of tracked templates.
func (t *Tracker) Len() int {
	return len(t.sources)
}

// Sources returns tracked sources ordered by generator then template.
func (t *Tracker) Sources() []Source {
	out := make([]Source, 0, len(t.sources))
	for _, src := range t.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Metadata, out[j].Metadata
		if a.Generator != b.Generator {
			return a.Generator < b.Generator
		}
		return a.Template < b.Template
	})
	return out
}

// ByGenerator returns tracked sources of one generator.
func (t *Tracker) ByGenerator(generator string) []Source {
	var out []Source
	for _, src := range t.Sources() {
		if src.Metadata.Generator == generator {
			out = append(out, src)
		}
	}
	return out
}
