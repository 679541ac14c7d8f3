package reconcile

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/simonhull/baseplate/internal/textdiff"
)

// Resolution is what to do with a file whose merge conflicted.
type Resolution int

const (
	// KeepMarkers writes the merged text with conflict markers.
	KeepMarkers Resolution = iota
	// TakeGenerated overwrites the file with the generated text.
	TakeGenerated
	// KeepExisting leaves the working copy untouched.
	KeepExisting
	// ShowDiff is a menu choice, never a final resolution.
	ShowDiff
	// Cancel aborts the run.
	Cancel
)

// Conflict is a file whose three-way merge left conflict markers.
type Conflict struct {
	Path      string
	Existing  []byte
	Generated []byte
	Merged    MergeResult
	ModTime   time.Time
	Size      int64
}

// Strategy decides how conflicts are resolved.
type Strategy interface {
	Resolve(c *Conflict) (Resolution, error)
}

// Strategy names accepted by NewStrategy.
const (
	StrategyMerge       = "merge"
	StrategyForce       = "force"
	StrategySkip        = "skip"
	StrategyInteractive = "interactive"
)

var (
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("yellow")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("cyan")).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	borderStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("white")).Bold(true)
)

// NewStrategy returns the named strategy. "" selects merge. Interactive
// resolution needs a terminal on stdin and stdout.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "", StrategyMerge:
		return MergeStrategy{}, nil
	case StrategyForce:
		return ForceStrategy{}, nil
	case StrategySkip:
		return SkipStrategy{}, nil
	case StrategyInteractive:
		if !IsTerminal() {
			return nil, fmt.Errorf("interactive conflict resolution requires a terminal")
		}
		return &InteractiveStrategy{Out: os.Stdout}, nil
	}
	return nil, fmt.Errorf("unknown conflict strategy %q (expected merge, force, skip or interactive)", name)
}

// StrategyFromFlags maps the generate command's flags to a strategy name.
func StrategyFromFlags(force, skip, interactive bool, fallback string) (string, error) {
	set := 0
	name := fallback
	for flag, n := range map[string]bool{StrategyForce: force, StrategySkip: skip, StrategyInteractive: interactive} {
		if n {
			set++
			name = flag
		}
	}
	if set > 1 {
		return "", fmt.Errorf("--force, --skip and --interactive are mutually exclusive")
	}
	return name, nil
}

// IsTerminal reports whether stdin and stdout are terminals.
func IsTerminal() bool {
	return isTTY(os.Stdin.Fd()) && isTTY(os.Stdout.Fd())
}

func isTTY(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// MergeStrategy keeps conflict markers for the user to resolve.
type MergeStrategy struct{}

func (MergeStrategy) Resolve(*Conflict) (Resolution, error) { return KeepMarkers, nil }

// ForceStrategy always takes the generated text.
type ForceStrategy struct{}

func (ForceStrategy) Resolve(*Conflict) (Resolution, error) { return TakeGenerated, nil }

// SkipStrategy always keeps the working copy.
type SkipStrategy struct{}

func (SkipStrategy) Resolve(*Conflict) (Resolution, error) { return KeepExisting, nil }

// InteractiveStrategy asks the user with a menu. Choosing "Show diff" opens
// the diff and returns to the menu.
type InteractiveStrategy struct {
	Out io.Writer

	mu sync.Mutex
}

func (s *InteractiveStrategy) Resolve(c *Conflict) (Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		p := tea.NewProgram(newConflictMenuModel(c), tea.WithOutput(s.Out))
		finalModel, err := p.Run()
		if err != nil {
			return Cancel, fmt.Errorf("failed to show menu: %w", err)
		}

		result := finalModel.(conflictMenuModel)
		if result.selected == nil {
			return Cancel, nil
		}
		if *result.selected != ShowDiff {
			return *result.selected, nil
		}
		if err := s.showDiff(c); err != nil {
			return Cancel, err
		}
	}
}

func (s *InteractiveStrategy) showDiff(c *Conflict) error {
	diff := textdiff.RenderText("existing/"+c.Path, "generated/"+c.Path, c.Existing, c.Generated,
		textdiff.RenderOptions{ShowLineNums: true, Color: true})

	if strings.Count(diff, "\n") <= 20 {
		_, err := fmt.Fprintln(s.Out, diff)
		return err
	}
	p := tea.NewProgram(newDiffViewerModel(c.Path, diff), tea.WithAltScreen(), tea.WithOutput(s.Out))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to show diff: %w", err)
	}
	return nil
}

type conflictMenuModel struct {
	conflict *Conflict
	choices  []string
	cursor   int
	selected *Resolution
}

var menuResolutions = []Resolution{ShowDiff, KeepMarkers, KeepExisting, TakeGenerated, Cancel}

func newConflictMenuModel(c *Conflict) conflictMenuModel {
	return conflictMenuModel{
		conflict: c,
		choices: []string{
			"Show diff and decide",
			"Write with conflict markers (resolve by hand)",
			"Keep existing file",
			"Overwrite with generated code",
			"Cancel generation",
		},
	}
}

func (m conflictMenuModel) Init() tea.Cmd {
	return nil
}

func (m conflictMenuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "up", "k":
			m.cursor = max(0, m.cursor-1)
		case "down", "j":
			m.cursor = min(len(m.choices)-1, m.cursor+1)
		case "enter":
			resolution := menuResolutions[m.cursor]
			m.selected = &resolution
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m conflictMenuModel) View() string {
	var b strings.Builder

	c := m.conflict
	b.WriteString(warningStyle.Render("⚠  Conflicting edits in ") + titleStyle.Render(c.Path) + "\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("    %d conflicting region(s)", c.Merged.Conflicts)) + "\n")
	if !c.ModTime.IsZero() {
		b.WriteString(mutedStyle.Render("    Last modified: ") + formatRelativeTime(c.ModTime) + "\n")
		b.WriteString(mutedStyle.Render("    Size: ") + formatFileSize(c.Size) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("    ↑/↓ move · enter choose · q cancel") + "\n\n")

	for i, label := range m.choices {
		line := "      " + label
		if i == m.cursor {
			line = "    " + selectedStyle.Render("> "+label)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

type diffViewerModel struct {
	path     string
	diff     string
	viewport viewport.Model
	ready    bool
}

func newDiffViewerModel(path, diff string) diffViewerModel {
	return diffViewerModel{path: path, diff: diff}
}

func (m diffViewerModel) Init() tea.Cmd {
	return nil
}

func (m diffViewerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "up", "k":
			m.viewport.ScrollUp(1)
		case "down", "j":
			m.viewport.ScrollDown(1)
		case "pgup", "b":
			m.viewport.PageUp()
		case "pgdown", "f", "space":
			m.viewport.PageDown()
		}

	case tea.WindowSizeMsg:
		const chrome = 5 // header, footer and borders
		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-chrome)
			m.viewport.SetContent(m.diff)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - chrome
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m diffViewerModel) View() string {
	if !m.ready {
		return "loading diff..."
	}

	var b strings.Builder
	title := "─ " + m.path + " "
	b.WriteString(borderStyle.Render("┌"+title+strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(title)+2))+"┐") + "\n")

	for _, line := range strings.Split(m.viewport.View(), "\n") {
		pad := strings.Repeat(" ", max(0, m.viewport.Width-lipgloss.Width(line)))
		b.WriteString(borderStyle.Render("│") + " " + line + pad + " " + borderStyle.Render("│") + "\n")
	}

	footer := " [↑/↓] Scroll    [q] Back to menu "
	b.WriteString(borderStyle.Render("└"+strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(footer)+2))+footer+"┘") + "\n")
	return b.String()
}

var ageUnits = []struct {
	name string
	span time.Duration
}{
	{"year", 365 * 24 * time.Hour},
	{"month", 30 * 24 * time.Hour},
	{"week", 7 * 24 * time.Hour},
	{"day", 24 * time.Hour},
	{"hour", time.Hour},
	{"minute", time.Minute},
}

// formatRelativeTime renders the age of t, e.g. "3 days ago".
func formatRelativeTime(t time.Time) string {
	age := time.Since(t)
	for _, u := range ageUnits {
		n := int(age / u.span)
		switch {
		case n == 1:
			return "1 " + u.name + " ago"
		case n > 1:
			return fmt.Sprintf("%d %ss ago", n, u.name)
		}
	}
	return "just now"
}

func formatFileSize(size int64) string {
	if size < 1024 {
		return fmt.Sprintf("%d B", size)
	}
	v := float64(size) / 1024
	suffix := "KB"
	for _, next := range []string{"MB", "GB", "TB"} {
		if v < 1024 {
			break
		}
		v /= 1024
		suffix = next
	}
	return fmt.Sprintf("%.1f %s", v, suffix)
}
