package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

// maxListedErrors caps how many entries an aggregate error prints.
const maxListedErrors = 10

var (
	// ErrConflict matches a *ConflictDetectedError.
	ErrConflict = errors.New("merge conflict")
	// ErrCancelled is returned when the user cancels interactive resolution.
	ErrCancelled = errors.New("cancelled by user")
)

// ConflictDetectedError lists files that were written with conflict
// markers. The files are on disk; the user resolves them by hand.
type ConflictDetectedError struct {
	Paths []string
}

func (e *ConflictDetectedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "conflicts detected in %d file(s); fix the conflict markers and run generate again:", len(e.Paths))
	for _, p := range e.Paths {
		b.WriteString("\n  - " + p)
	}
	return b.String()
}

func (e *ConflictDetectedError) Unwrap() error {
	return ErrConflict
}

// FormatterError reports a formatter failure. Contents holds the
// unformatted text that was used instead.
type FormatterError struct {
	Path      string
	Formatter string
	Contents  []byte
	Cause     error
}

func (e *FormatterError) Error() string {
	if e.Formatter != "" {
		return fmt.Sprintf("format %s with %s: %v", e.Path, e.Formatter, e.Cause)
	}
	return fmt.Sprintf("format %s: %v", e.Path, e.Cause)
}

func (e *FormatterError) Unwrap() error {
	return e.Cause
}

// FileError is a failure to prepare one file.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// PrepareFilesError aggregates per-file failures.
type PrepareFilesError struct {
	Errors []*FileError
}

func (e *PrepareFilesError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to prepare %d file(s):", len(e.Errors))
	for i, fe := range e.Errors {
		if i == maxListedErrors {
			fmt.Fprintf(&b, "\n  ... and %d more", len(e.Errors)-maxListedErrors)
			break
		}
		fmt.Fprintf(&b, "\n  %d. %s", i+1, fe.Error())
	}
	return b.String()
}

func (e *PrepareFilesError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, fe := range e.Errors {
		errs[i] = fe
	}
	return errs
}
