package engine

import (
	"context"
	"log/slog"

	"github.com/simonhull/baseplate/internal/provider"
)

// Task is a unit of work declared by a generator instance.
//
// Dependencies and Exports are keyed by local names that the task body uses
// with provider.Get. Exports are published when Run returns and are visible
// to tasks in the same or later phases. Outputs are published by the build
// step through Builder.SetOutput and are only visible to later phases.
type Task struct {
	Name         string
	Phase        *TaskPhase
	Dependencies map[string]provider.Dependency
	Exports      map[string]provider.Export
	Outputs      map[string]provider.Export
	Run          func(ctx context.Context, in TaskInput) (TaskResult, error)
}

// TaskInput is passed to a task body.
type TaskInput struct {
	Deps   provider.Values
	Node   *GeneratorEntry
	Logger *slog.Logger
}

// TaskResult is what a task body returns: its exported provider values and
// an optional build step.
type TaskResult struct {
	Providers provider.Values
	Build     func(ctx context.Context, b *Builder) error
}

// TaskEntry places a task in the tree.
type TaskEntry struct {
	*Task

	// ID is "<generator id>#<task name>".
	ID   string
	Node int
}

// PhaseName returns the task's phase name, or "default".
func (t *TaskEntry) PhaseName() string {
	return t.Phase.String()
}
