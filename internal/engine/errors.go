package engine

import (
	"errors"
	"fmt"
	"strings"
)

const maxListedErrors = 10

var (
	ErrUnknownGenerator   = errors.New("unknown generator")
	ErrDuplicateGenerator = errors.New("duplicate generator name")
	ErrDuplicateTask      = errors.New("duplicate task name")
	ErrDuplicatePhase     = errors.New("duplicate phase name")
	ErrDependencyFailed   = errors.New("dependency failed")
	ErrDuplicateWrite     = errors.New("file written twice")
)

// UnknownGeneratorError names a descriptor whose generator is not registered.
type UnknownGeneratorError struct {
	Instance  string
	Generator string
}

func (e *UnknownGeneratorError) Error() string {
	return fmt.Sprintf("%s %q requested by %s", ErrUnknownGenerator, e.Generator, e.Instance)
}

func (e *UnknownGeneratorError) Unwrap() error { return ErrUnknownGenerator }

// DuplicateGeneratorError reports two children of one parent sharing an
// instance name.
type DuplicateGeneratorError struct {
	Parent string
	Name   string
}

func (e *DuplicateGeneratorError) Error() string {
	parent := e.Parent
	if parent == "" {
		parent = "the root"
	}
	return fmt.Sprintf("%s: %q appears twice under %s", ErrDuplicateGenerator, e.Name, parent)
}

func (e *DuplicateGeneratorError) Unwrap() error { return ErrDuplicateGenerator }

// DuplicateTaskError reports two tasks of one generator sharing a name.
type DuplicateTaskError struct {
	Generator string
	Task      string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("%s: %q is declared twice by %s", ErrDuplicateTask, e.Task, e.Generator)
}

func (e *DuplicateTaskError) Unwrap() error { return ErrDuplicateTask }

// DuplicatePhaseError reports two distinct phases with one name.
type DuplicatePhaseError struct {
	Name string
}

func (e *DuplicatePhaseError) Error() string {
	return fmt.Sprintf("%s: %q is defined by two different phases", ErrDuplicatePhase, e.Name)
}

func (e *DuplicatePhaseError) Unwrap() error { return ErrDuplicatePhase }

// DuplicateWriteError reports two tasks writing the same path.
type DuplicateWriteError struct {
	Path  string
	First string
}

func (e *DuplicateWriteError) Error() string {
	return fmt.Sprintf("%s: %s was already written by %s", ErrDuplicateWrite, e.Path, e.First)
}

func (e *DuplicateWriteError) Unwrap() error { return ErrDuplicateWrite }

// PhaseOrderError reports a dependency on a provider that is not available
// yet when the dependent runs.
type PhaseOrderError struct {
	Task          string
	Phase         string
	Provider      string
	Producer      string
	ProducerPhase string
	// Output is set when the provider is a build output, which only later
	// phases can see.
	Output bool
}

func (e *PhaseOrderError) Error() string {
	if e.Output {
		return fmt.Sprintf("task %s depends on %q, a build output of %s in the same phase %s; outputs are only visible to later phases",
			e.Task, e.Provider, e.Producer, e.Phase)
	}
	return fmt.Sprintf("task %s in phase %s depends on %q, exported by %s in later phase %s",
		e.Task, e.Phase, e.Provider, e.Producer, e.ProducerPhase)
}

// TaskError is the failure of one task.
type TaskError struct {
	Task  string
	Phase string
	Stage string // "run" or "build"
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s (%s phase, %s): %v", e.Task, e.Phase, e.Stage, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// TaskErrors aggregates every task failure of a run.
type TaskErrors struct {
	Errors []*TaskError
}

func (e *TaskErrors) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d task(s) failed:", len(e.Errors))
	for i, te := range e.Errors {
		if i == maxListedErrors {
			fmt.Fprintf(&b, "\n  ... and %d more", len(e.Errors)-maxListedErrors)
			break
		}
		fmt.Fprintf(&b, "\n  %d. %s", i+1, te.Error())
	}
	return b.String()
}

func (e *TaskErrors) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, te := range e.Errors {
		errs[i] = te
	}
	return errs
}

// Tasks returns the IDs of the failed tasks.
func (e *TaskErrors) Tasks() []string {
	ids := make([]string, len(e.Errors))
	for i, te := range e.Errors {
		ids[i] = te.Task
	}
	return ids
}
