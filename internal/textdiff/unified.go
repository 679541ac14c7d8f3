package textdiff

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// DefaultContext is the number of unchanged lines kept around each hunk.
const DefaultContext = 3

// ErrPatchMismatch is returned when a diff does not apply to the given text.
var ErrPatchMismatch = errors.New("patch does not apply")

// Unified returns a unified diff turning oldText into newText, or nil when
// they are equal. Every line produced by Lines is emitted, so a trailing
// newline shows up as a final empty context line and no
// "\ No newline at end of file" markers are needed.
func Unified(oldName, newName, oldText, newText string, context int) ([]byte, error) {
	fd := FileDiff(oldName, newName, oldText, newText, context)
	if fd == nil {
		return nil, nil
	}
	return diff.PrintFileDiff(fd)
}

// FileDiff builds the go-diff representation of the change from oldText to
// newText, or nil when they are equal.
func FileDiff(oldName, newName, oldText, newText string, context int) *diff.FileDiff {
	if oldText == newText {
		return nil
	}
	if context < 0 {
		context = DefaultContext
	}

	a, b := Lines(oldText), Lines(newText)
	edits := Diff(a, b)
	hunks := buildHunks(edits, context)
	if len(hunks) == 0 {
		return nil
	}
	return &diff.FileDiff{OrigName: oldName, NewName: newName, Hunks: hunks}
}

// buildHunks groups edits into hunks, merging changes separated by at most
// 2*context unchanged lines.
func buildHunks(edits []Edit, context int) []*diff.Hunk {
	var hunks []*diff.Hunk

	i := 0
	for i < len(edits) {
		for i < len(edits) && edits[i].Op == Equal {
			i++
		}
		if i == len(edits) {
			break
		}

		start := i - context
		if start < 0 {
			start = 0
		}

		// Extend end over changes and short equal gaps.
		end := i
		for end < len(edits) {
			if edits[end].Op != Equal {
				end++
				continue
			}
			gap := end
			for gap < len(edits) && edits[gap].Op == Equal {
				gap++
			}
			if gap == len(edits) || gap-end > 2*context {
				break
			}
			end = gap
		}
		stop := end + context
		if stop > len(edits) {
			stop = len(edits)
		}

		hunks = append(hunks, makeHunk(edits, start, stop))
		i = end
	}
	return hunks
}

func makeHunk(edits []Edit, start, stop int) *diff.Hunk {
	h := &diff.Hunk{}
	var body bytes.Buffer

	oldStart, newStart := -1, -1
	oldPos, newPos := position(edits, start)

	for _, e := range hunkOrder(edits[start:stop]) {
		switch e.Op {
		case Equal:
			body.WriteByte(' ')
			h.OrigLines++
			h.NewLines++
		case Delete:
			body.WriteByte('-')
			h.OrigLines++
		case Insert:
			body.WriteByte('+')
			h.NewLines++
		}
		body.WriteString(e.Text)
		body.WriteByte('\n')

		if oldStart < 0 && e.Op != Insert {
			oldStart = e.OldLine
		}
		if newStart < 0 && e.Op != Delete {
			newStart = e.NewLine
		}
	}

	// Unified diff convention: 1-based start, or the preceding line
	// number for an empty range.
	if h.OrigLines == 0 {
		h.OrigStartLine = int32(oldPos)
	} else {
		h.OrigStartLine = int32(oldStart + 1)
	}
	if h.NewLines == 0 {
		h.NewStartLine = int32(newPos)
	} else {
		h.NewStartLine = int32(newStart + 1)
	}
	h.Body = body.Bytes()
	return h
}

// hunkOrder lists each run of changes as its deletions followed by its
// insertions. When that would print a "---" line directly above a "+++"
// line, which parsers take for a file header, the insertions go first.
// Both orders apply identically.
func hunkOrder(edits []Edit) []Edit {
	out := make([]Edit, 0, len(edits))
	for i := 0; i < len(edits); {
		if edits[i].Op == Equal {
			out = append(out, edits[i])
			i++
			continue
		}
		var dels, ins []Edit
		for ; i < len(edits) && edits[i].Op != Equal; i++ {
			if edits[i].Op == Delete {
				dels = append(dels, edits[i])
			} else {
				ins = append(ins, edits[i])
			}
		}
		if len(dels) > 0 && len(ins) > 0 &&
			strings.HasPrefix(dels[len(dels)-1].Text, "--") && strings.HasPrefix(ins[0].Text, "++") {
			out = append(append(out, ins...), dels...)
		} else {
			out = append(append(out, dels...), ins...)
		}
	}
	return out
}

// position returns how many old and new lines precede edits[idx].
func position(edits []Edit, idx int) (int, int) {
	oldPos, newPos := 0, 0
	for _, e := range edits[:idx] {
		if e.Op != Insert {
			oldPos++
		}
		if e.Op != Delete {
			newPos++
		}
	}
	return oldPos, newPos
}

// Parse reads a single-file unified diff.
func Parse(data []byte) (*diff.FileDiff, error) {
	fd, err := diff.ParseFileDiff(data)
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}
	return fd, nil
}

// Apply applies fd to text.
func Apply(text string, fd *diff.FileDiff) (string, error) {
	return apply(text, fd, false)
}

// ReverseApply undoes fd on text, recovering the original side.
func ReverseApply(text string, fd *diff.FileDiff) (string, error) {
	return apply(text, fd, true)
}

func apply(text string, fd *diff.FileDiff, reverse bool) (string, error) {
	lines := Lines(text)
	out := make([]string, 0, len(lines))
	pos := 0

	// keep marks lines present in the input, drop marks lines to add.
	keep, drop := byte('-'), byte('+')
	if reverse {
		keep, drop = '+', '-'
	}

	for n, h := range fd.Hunks {
		start, count := int(h.OrigStartLine), int(h.OrigLines)
		if reverse {
			start, count = int(h.NewStartLine), int(h.NewLines)
		}
		if count > 0 {
			start--
		}
		if start < pos || start > len(lines) {
			return "", fmt.Errorf("%w: hunk %d starts at line %d", ErrPatchMismatch, n+1, start+1)
		}
		out = append(out, lines[pos:start]...)
		pos = start

		body := h.Body
		if len(body) > 0 && body[len(body)-1] == '\n' {
			body = body[:len(body)-1]
		}
		for _, raw := range bytes.Split(body, []byte{'\n'}) {
			if len(raw) == 0 {
				return "", fmt.Errorf("%w: hunk %d has an empty body line", ErrPatchMismatch, n+1)
			}
			prefix, content := raw[0], string(raw[1:])
			switch prefix {
			case ' ', keep:
				if pos >= len(lines) || lines[pos] != content {
					return "", fmt.Errorf("%w: hunk %d expected %q at line %d", ErrPatchMismatch, n+1, content, pos+1)
				}
				if prefix == ' ' {
					out = append(out, content)
				}
				pos++
			case drop:
				out = append(out, content)
			default:
				return "", fmt.Errorf("%w: hunk %d has unexpected line prefix %q", ErrPatchMismatch, n+1, prefix)
			}
		}
	}
	out = append(out, lines[pos:]...)
	return Join(out), nil
}
