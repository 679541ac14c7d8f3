package textdiff

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/sourcegraph/go-diff/diff"
	"golang.org/x/term"
)

// RenderOptions configures terminal rendering of a diff.
type RenderOptions struct {
	TabWidth     int  // Spaces per tab (default 4)
	Width        int  // Maximum line width (default: terminal width)
	ShowLineNums bool // Prefix lines with their old-file line number
	Color        bool // Style output with lipgloss
}

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	hunkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("22"))
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("52"))
	lineNumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Faint(true)
)

// RenderText diffs oldText against newText and renders the result.
// It returns "" when they are equal.
func RenderText(oldName, newName string, oldText, newText []byte, opts RenderOptions) string {
	if IsBinary(oldText) || IsBinary(newText) {
		if bytes.Equal(oldText, newText) {
			return ""
		}
		return "Binary files differ\n"
	}
	fd := FileDiff(oldName, newName, string(oldText), string(newText), DefaultContext)
	if fd == nil {
		return ""
	}
	return Render(fd, opts)
}

// Render formats a file diff for display.
func Render(fd *diff.FileDiff, opts RenderOptions) string {
	if opts.TabWidth <= 0 {
		opts.TabWidth = 4
	}
	if opts.Width <= 0 {
		opts.Width = terminalWidth()
	}

	style := func(s lipgloss.Style, text string) string {
		if !opts.Color {
			return text
		}
		return s.Render(text)
	}

	var buf strings.Builder
	buf.WriteString(style(headerStyle, "--- "+fd.OrigName) + "\n")
	buf.WriteString(style(headerStyle, "+++ "+fd.NewName) + "\n")

	for _, h := range fd.Hunks {
		header := fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OrigStartLine, h.OrigLines, h.NewStartLine, h.NewLines)
		buf.WriteString(style(hunkStyle, header) + "\n")

		oldLine := int(h.OrigStartLine)
		body := bytes.TrimSuffix(h.Body, []byte{'\n'})
		for _, raw := range bytes.Split(body, []byte{'\n'}) {
			if len(raw) == 0 {
				continue
			}
			prefix := raw[0]
			content := expandTabs(string(raw[1:]), opts.TabWidth)
			content = truncateLine(content, opts.Width-10)
			line := string(prefix) + content

			switch prefix {
			case '+':
				line = style(addedStyle, line)
			case '-':
				line = style(removedStyle, line)
			}

			if opts.ShowLineNums {
				num := "    "
				if prefix != '+' {
					num = fmt.Sprintf("%4d", oldLine)
					oldLine++
				}
				line = style(lineNumStyle, num) + " " + line
			}
			buf.WriteString(line + "\n")
		}
	}
	return buf.String()
}

// Stat counts added and removed lines.
func Stat(fd *diff.FileDiff) (added, removed int) {
	for _, h := range fd.Hunks {
		for _, raw := range bytes.Split(h.Body, []byte{'\n'}) {
			if len(raw) == 0 {
				continue
			}
			switch raw[0] {
			case '+':
				added++
			case '-':
				removed++
			}
		}
	}
	return added, removed
}

func expandTabs(s string, tabWidth int) string {
	if !strings.ContainsRune(s, '\t') {
		return s
	}
	var buf strings.Builder
	col := 0
	for _, r := range s {
		if r == '\t' {
			spaces := tabWidth - (col % tabWidth)
			buf.WriteString(strings.Repeat(" ", spaces))
			col += spaces
			continue
		}
		buf.WriteRune(r)
		col++
	}
	return buf.String()
}

func truncateLine(s string, maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = 80
	}
	if utf8.RuneCountInString(s) <= maxWidth {
		return s
	}
	if maxWidth < 3 {
		return "..."[:maxWidth]
	}
	runes := []rune(s)
	return string(runes[:maxWidth-3]) + "..."
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}
