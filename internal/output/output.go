// Package output prints styled messages for the baseplate CLI.
//
// Functions use lipgloss for styling but keep the details away from
// callers. Diagnostics meant for debugging go through log/slog instead.
package output

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("green")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("yellow"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("cyan"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	// Styles for file actions in run summaries.
	createStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("green"))
	updateStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("cyan"))
	conflictStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Bold(true)
	removeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("magenta"))

	mu          sync.Mutex
	out         io.Writer = os.Stdout
	verboseMode bool
)

// SetVerbose enables or disables verbose output for debugging.
// This should be called by the CLI when the --verbose flag is set.
func SetVerbose(v bool) {
	mu.Lock()
	verboseMode = v
	mu.Unlock()
}

// IsVerbose reports whether verbose output is enabled.
func IsVerbose() bool {
	mu.Lock()
	defer mu.Unlock()
	return verboseMode
}

// SetOutput redirects all output to w and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := out
	out = w
	return prev
}

// Writer returns the current destination.
func Writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

func printLine(s string) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintln(out, s)
}

// Success prints a success message in green.
// Use this for completed operations.
//
// Example:
//
//	output.Success("Generated 12 files")
func Success(msg string) {
	printLine(successStyle.Render("✔ " + msg))
}

// Error prints an error message in red.
func Error(msg string) {
	printLine(errorStyle.Render("✖ " + msg))
}

// Warn prints a warning in yellow. Use this for problems that did not stop
// the run, such as formatter failures.
func Warn(msg string) {
	printLine(warnStyle.Render("⚠ " + msg))
}

// Info prints an informational message in cyan.
func Info(msg string) {
	printLine(infoStyle.Render("ℹ " + msg))
}

// Step prints an indented step message in gray.
//
// Example:
//
//	output.Step("fix the conflict markers in internal/api/api.go")
func Step(msg string) {
	printLine(stepStyle.Render("   " + msg))
}

// Verbose prints a debug message only if verbose mode is enabled.
func Verbose(msg string) {
	if IsVerbose() {
		printLine(stepStyle.Render("· " + msg))
	}
}

// Action prints one file action of a run summary, such as "create" or
// "conflict", followed by the path.
func Action(action, path string) {
	style := stepStyle
	switch action {
	case "create":
		style = createStyle
	case "update", "merge":
		style = updateStyle
	case "conflict":
		style = conflictStyle
	case "remove", "deleted by user", "orphaned":
		style = removeStyle
	}
	printLine(fmt.Sprintf("   %s %s", style.Render(fmt.Sprintf("%-12s", action)), path))
}

// Raw prints text without styling, e.g. a rendered diff.
func Raw(text string) {
	printLine(text)
}
