package reconcile

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/tools/imports"

	"github.com/simonhull/baseplate/internal/exec"
)

// Formatter rewrites generated text before it is merged.
type Formatter interface {
	Name() string
	// Match reports whether the formatter handles the slash-separated path.
	Match(path string) bool
	Format(ctx context.Context, path string, contents []byte) ([]byte, error)
}

// GoFormatter formats Go source with goimports.
type GoFormatter struct {
	// FixImports adds missing and removes unused imports.
	FixImports bool
}

func (GoFormatter) Name() string { return "goimports" }

func (GoFormatter) Match(p string) bool {
	return strings.HasSuffix(p, ".go")
}

func (f GoFormatter) Format(_ context.Context, p string, contents []byte) ([]byte, error) {
	return imports.Process(p, contents, &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: !f.FixImports,
	})
}

// CommandFormatter pipes contents through an external command and takes
// its stdout. "{path}" in Args is replaced by the file path.
type CommandFormatter struct {
	Label    string
	Patterns []string
	Args     []string
	Executor *exec.Executor
}

func (f *CommandFormatter) Name() string {
	if f.Label != "" {
		return f.Label
	}
	if len(f.Args) > 0 {
		return f.Args[0]
	}
	return "command"
}

// Match matches each pattern against the full path and, for patterns
// without a slash, the base name.
func (f *CommandFormatter) Match(p string) bool {
	for _, pattern := range f.Patterns {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if ok, _ := doublestar.Match(pattern, path.Base(p)); ok {
				return true
			}
		}
	}
	return false
}

func (f *CommandFormatter) Format(ctx context.Context, p string, contents []byte) ([]byte, error) {
	if len(f.Args) == 0 {
		return nil, fmt.Errorf("formatter %s has no command", f.Name())
	}
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = strings.ReplaceAll(a, "{path}", p)
	}

	res, err := f.Executor.Capture(ctx, contents, args[0], args[1:]...)
	if err != nil {
		if res != nil && len(res.Stderr) > 0 {
			return nil, fmt.Errorf("%w: %s", err, bytes.TrimSpace(res.Stderr))
		}
		return nil, err
	}
	return res.Stdout, nil
}

// Pipeline runs every matching formatter in order.
type Pipeline struct {
	formatters []Formatter
}

// NewPipeline creates a formatter pipeline.
func NewPipeline(formatters ...Formatter) *Pipeline {
	return &Pipeline{formatters: formatters}
}

// Len returns the number of formatters.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.formatters)
}

// Format applies the matching formatters. On failure it returns the
// unformatted contents together with a *FormatterError.
func (p *Pipeline) Format(ctx context.Context, filePath string, contents []byte) ([]byte, error) {
	if p == nil {
		return contents, nil
	}
	out := contents
	for _, f := range p.formatters {
		if !f.Match(filePath) {
			continue
		}
		formatted, err := f.Format(ctx, filePath, out)
		if err != nil {
			return contents, &FormatterError{Path: filePath, Formatter: f.Name(), Contents: contents, Cause: err}
		}
		out = formatted
	}
	return out, nil
}
