package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Executor runs external commands.
type Executor struct {
	stdout  io.Writer
	stderr  io.Writer
	env     []string
	dir     string
	timeout time.Duration

	// For mocking in tests
	commandFunc func(name string, args ...string) *exec.Cmd
}

// Options configures command execution
type Options struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Env     []string      // Additional environment variables (KEY=value)
	Dir     string        // Working directory
	Timeout time.Duration // Per-command timeout, zero for none
}

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// NewExecutor creates an executor. Nil options stream to the process's
// stdout and stderr.
func NewExecutor(opts *Options) *Executor {
	if opts == nil {
		opts = &Options{}
	}
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	return &Executor{
		stdout:      stdout,
		stderr:      stderr,
		env:         opts.Env,
		dir:         opts.Dir,
		timeout:     opts.Timeout,
		commandFunc: exec.Command,
	}
}

// WithDir returns a copy of the executor running in dir.
func (e *Executor) WithDir(dir string) *Executor {
	c := *e
	c.dir = dir
	return &c
}

// WithEnv returns a copy of the executor with extra environment entries.
func (e *Executor) WithEnv(env ...string) *Executor {
	c := *e
	c.env = append(append([]string(nil), e.env...), env...)
	return &c
}

// WithTimeout returns a copy of the executor with a different timeout.
func (e *Executor) WithTimeout(d time.Duration) *Executor {
	c := *e
	c.timeout = d
	return &c
}

// Run executes a command, streaming its output to the executor's writers.
func (e *Executor) Run(ctx context.Context, name string, args ...string) error {
	_, err := e.start(ctx, nil, e.stdout, e.stderr, name, args)
	return err
}

// Capture executes a command with stdin and returns what it wrote. The
// output is returned even when the command fails.
func (e *Executor) Capture(ctx context.Context, stdin []byte, name string, args ...string) (*Result, error) {
	var stdout, stderr bytes.Buffer
	res, err := e.start(ctx, stdin, &stdout, &stderr, name, args)
	res.Stdout, res.Stderr = stdout.Bytes(), stderr.Bytes()
	return res, err
}

// CaptureTee is Capture that also streams both outputs to w.
func (e *Executor) CaptureTee(ctx context.Context, w io.Writer, name string, args ...string) (*Result, error) {
	var stdout, stderr bytes.Buffer
	shared := &lockedWriter{w: w}
	res, err := e.start(ctx, nil, io.MultiWriter(&stdout, shared), io.MultiWriter(&stderr, shared), name, args)
	res.Stdout, res.Stderr = stdout.Bytes(), stderr.Bytes()
	return res, err
}

func (e *Executor) start(ctx context.Context, stdin []byte, stdout, stderr io.Writer, name string, args []string) (*Result, error) {
	res := &Result{ExitCode: -1}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := e.commandFunc(name, args...)
	if e.dir != "" {
		cmd.Dir = e.dir
	}
	if len(e.env) > 0 {
		base := cmd.Env
		if base == nil {
			base = os.Environ()
		}
		cmd.Env = append(base, e.env...)
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	began := time.Now()
	if err := cmd.Start(); err != nil {
		if isCommandNotFound(err) {
			return res, enhanceError(err, name)
		}
		return res, fmt.Errorf("failed to start %s: %w", name, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-errCh
		res.Duration = time.Since(began)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && e.timeout > 0 {
			return res, fmt.Errorf("%s timed out after %s: %w", name, e.timeout, ctx.Err())
		}
		return res, fmt.Errorf("%s cancelled: %w", name, ctx.Err())
	case err := <-errCh:
		res.Duration = time.Since(began)
		if cmd.ProcessState != nil {
			res.ExitCode = cmd.ProcessState.ExitCode()
		}
		if err != nil {
			if isCommandNotFound(err) {
				return res, enhanceError(err, name)
			}
			return res, fmt.Errorf("%s failed: %w", name, err)
		}
		return res, nil
	}
}

// RunWithSpinner runs a command behind a progress spinner, capturing its
// output instead of streaming it.
func (e *Executor) RunWithSpinner(ctx context.Context, message string, name string, args ...string) (*Result, error) {
	done := make(chan struct{})
	var (
		res *Result
		err error
	)
	go func() {
		defer close(done)
		res, err = e.Capture(ctx, nil, name, args...)
	}()

	p := tea.NewProgram(newSpinnerModel(message), tea.WithOutput(e.stderr), tea.WithInput(nil))
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_, _ = p.Run()
	}()

	<-done
	p.Send(spinnerDoneMsg{err: err})
	<-finished

	return res, err
}

// lockedWriter serializes writes from the stdout and stderr copiers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type spinnerModel struct {
	spinner spinner.Model
	message string
	done    bool
	err     error
}

type spinnerDoneMsg struct {
	err error
}

func newSpinnerModel(message string) *spinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return &spinnerModel{
		spinner: s,
		message: message,
	}
}

func (m *spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinnerDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		if !m.done {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m *spinnerModel) View() string {
	if m.done {
		if m.err != nil {
			return fmt.Sprintf("❌ %s\n", m.message)
		}
		return fmt.Sprintf("✅ %s\n", m.message)
	}
	return fmt.Sprintf("%s %s...", m.spinner.View(), m.message)
}

// isCommandNotFound checks if an error indicates a command was not found
func isCommandNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "executable file not found") ||
		strings.Contains(msg, "command not found")
}

// enhanceError adds helpful message for missing commands
func enhanceError(err error, cmd string) error {
	return fmt.Errorf("%w\n💡 Command '%s' not found. Please install it and try again", err, cmd)
}
