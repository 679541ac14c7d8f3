package exec

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultTimeout bounds a post-write command that sets no timeout.
const DefaultTimeout = 5 * time.Minute

// Priority is the bucket a post-write command runs in. Lower runs first.
type Priority int

const (
	PriorityDependencies Priority = iota
	PriorityCodegen
	PriorityDefault
)

func (p Priority) String() string {
	switch p {
	case PriorityDependencies:
		return "dependencies"
	case PriorityCodegen:
		return "codegen"
	default:
		return "default"
	}
}

// ParsePriority parses a priority name. The empty string is PriorityDefault.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dependencies":
		return PriorityDependencies, nil
	case "codegen":
		return PriorityCodegen, nil
	case "default", "":
		return PriorityDefault, nil
	}
	return PriorityDefault, fmt.Errorf("unknown command priority %q (expected dependencies, codegen or default)", s)
}

// Command is a command to run once generated files are on disk.
type Command struct {
	// Args is the program followed by its arguments.
	Args     []string
	Priority Priority
	// OnlyIfChanged restricts the command to runs that changed a file
	// matching one of these globs (slash-separated, relative to the root).
	OnlyIfChanged []string
	// WorkingDir is relative to the runner's root.
	WorkingDir string
	Timeout    time.Duration
	Env        map[string]string
}

func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// Matches reports whether the command should run given the changed paths.
func (c Command) Matches(changed []string) bool {
	if len(c.OnlyIfChanged) == 0 {
		return true
	}
	for _, pattern := range c.OnlyIfChanged {
		for _, path := range changed {
			if ok, _ := doublestar.Match(pattern, path); ok {
				return true
			}
		}
	}
	return false
}

// Completed is a command that ran.
type Completed struct {
	Command  Command
	Result   *Result
	Duration time.Duration
}

// Failure is a command that failed, with whatever output it produced.
type Failure struct {
	Command Command
	Stdout  []byte
	Stderr  []byte
	Err     error
}

// Report summarises a Runner invocation.
type Report struct {
	Completed      []Completed
	Skipped        []Command
	FailedCommands []Failure
}

// Failed reports whether any command failed.
func (r *Report) Failed() bool {
	return len(r.FailedCommands) > 0
}

// Err returns a *FailedCommandsError when any command failed.
func (r *Report) Err() error {
	if !r.Failed() {
		return nil
	}
	return &FailedCommandsError{Failures: r.FailedCommands}
}

// FailedCommandsError lists every failed post-write command.
type FailedCommandsError struct {
	Failures []Failure
}

func (e *FailedCommandsError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d post-write command(s) failed:", len(e.Failures))
	for i, f := range e.Failures {
		fmt.Fprintf(&b, "\n  %d. %s: %v", i+1, f.Command, f.Err)
	}
	return b.String()
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// Root resolves relative working directories.
	Root   string
	Logger *slog.Logger
	// Stream, when set, receives command output prefixed line by line as
	// it is produced.
	Stream io.Writer
	// Spinner shows a progress spinner per command instead of streaming.
	Spinner bool
}

// Runner executes post-write commands in priority order.
type Runner struct {
	executor *Executor
	opts     RunnerOptions
	logger   *slog.Logger
}

// NewRunner creates a runner on top of executor.
func NewRunner(executor *Executor, opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{executor: executor, opts: opts, logger: logger}
}

// Run executes cmds sorted by priority, keeping their relative order within
// a bucket, one at a time. A failing command is recorded and the remaining
// commands still run. changed lists the paths written by this run, used by
// OnlyIfChanged.
func (r *Runner) Run(ctx context.Context, cmds []Command, changed []string) *Report {
	report := &Report{}

	ordered := slices.Clone(cmds)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	for _, cmd := range ordered {
		if len(cmd.Args) == 0 {
			report.FailedCommands = append(report.FailedCommands, Failure{Command: cmd, Err: fmt.Errorf("empty command")})
			continue
		}
		if !cmd.Matches(changed) {
			r.logger.Debug("skipping command, no matching changes", "command", cmd.String(), "only_if_changed", cmd.OnlyIfChanged)
			report.Skipped = append(report.Skipped, cmd)
			continue
		}
		if err := ctx.Err(); err != nil {
			report.FailedCommands = append(report.FailedCommands, Failure{Command: cmd, Err: fmt.Errorf("not started: %w", err)})
			continue
		}

		res, err := r.runOne(ctx, cmd)
		if err != nil {
			f := Failure{Command: cmd, Err: err}
			if res != nil {
				f.Stdout, f.Stderr = res.Stdout, res.Stderr
			}
			r.logger.Error("post-write command failed",
				"command", cmd.String(),
				"priority", cmd.Priority.String(),
				"error", err,
				"stdout", string(f.Stdout),
				"stderr", string(f.Stderr))
			report.FailedCommands = append(report.FailedCommands, f)
			continue
		}

		r.logger.Debug("post-write command finished", "command", cmd.String(), "duration", res.Duration)
		report.Completed = append(report.Completed, Completed{Command: cmd, Result: res, Duration: res.Duration})
	}

	return report
}

func (r *Runner) runOne(ctx context.Context, cmd Command) (*Result, error) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	e := r.executor.WithTimeout(timeout).WithDir(r.workingDir(cmd))
	if len(cmd.Env) > 0 {
		e = e.WithEnv(envList(cmd.Env)...)
	}

	name, args := cmd.Args[0], cmd.Args[1:]
	switch {
	case r.opts.Spinner:
		return e.RunWithSpinner(ctx, cmd.String(), name, args...)
	case r.opts.Stream != nil:
		pw := NewPrefixWriter(r.opts.Stream, "  │ ", "240")
		defer pw.Flush()
		return e.CaptureTee(ctx, pw, name, args...)
	default:
		return e.Capture(ctx, nil, name, args...)
	}
}

func (r *Runner) workingDir(cmd Command) string {
	dir := cmd.WorkingDir
	if dir == "" {
		return r.opts.Root
	}
	if filepath.IsAbs(dir) || r.opts.Root == "" {
		return dir
	}
	return filepath.Join(r.opts.Root, dir)
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
