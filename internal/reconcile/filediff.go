package reconcile

import (
	"bytes"
	"fmt"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/simonhull/baseplate/internal/textdiff"
)

// ChangeKind is what happened to a file.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	default:
		return "deleted"
	}
}

// FileDiff describes one file change for reporting. Which fields are set
// depends on Kind and Binary:
//
//	added text/binary     Contents
//	modified text         Unified, LinesAdded, LinesRemoved
//	modified binary       OldSize, NewSize
//	deleted text/binary   OldSize
type FileDiff struct {
	Kind   ChangeKind
	Path   string
	Binary bool

	Contents     []byte
	Unified      []byte
	LinesAdded   int
	LinesRemoved int
	OldSize      int
	NewSize      int
}

// DiffFile compares two versions of path. A nil slice means the file does
// not exist on that side. It returns nil when nothing changed.
func DiffFile(p string, before, after []byte) (*FileDiff, error) {
	binary := textdiff.IsBinary(before) || textdiff.IsBinary(after)

	switch {
	case before == nil && after == nil:
		return nil, nil
	case before == nil:
		return &FileDiff{Kind: Added, Path: p, Binary: binary, Contents: after, NewSize: len(after)}, nil
	case after == nil:
		return &FileDiff{Kind: Deleted, Path: p, Binary: binary, OldSize: len(before)}, nil
	case bytes.Equal(before, after):
		return nil, nil
	}

	d := &FileDiff{Kind: Modified, Path: p, Binary: binary, OldSize: len(before), NewSize: len(after)}
	if binary {
		return d, nil
	}

	fd := textdiff.FileDiff("a/"+p, "b/"+p, string(before), string(after), textdiff.DefaultContext)
	if fd == nil {
		return nil, nil
	}
	unified, err := diff.PrintFileDiff(fd)
	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", p, err)
	}
	d.Unified = unified
	d.LinesAdded, d.LinesRemoved = textdiff.Stat(fd)
	return d, nil
}

// Summary is a one-line description, e.g. "modified internal/app.go (+3 -1)".
func (d *FileDiff) Summary() string {
	switch {
	case d.Binary && d.Kind == Modified:
		return fmt.Sprintf("%s %s (binary, %d → %d bytes)", d.Kind, d.Path, d.OldSize, d.NewSize)
	case d.Binary:
		return fmt.Sprintf("%s %s (binary)", d.Kind, d.Path)
	case d.Kind == Modified:
		return fmt.Sprintf("%s %s (+%d -%d)", d.Kind, d.Path, d.LinesAdded, d.LinesRemoved)
	default:
		return fmt.Sprintf("%s %s", d.Kind, d.Path)
	}
}

// Render formats the diff for the terminal.
func (d *FileDiff) Render(opts textdiff.RenderOptions) string {
	switch {
	case d.Binary || d.Kind == Deleted:
		return d.Summary() + "\n"
	case d.Kind == Added:
		return textdiff.RenderText("/dev/null", "b/"+d.Path, nil, d.Contents, opts)
	}
	fd, err := textdiff.Parse(d.Unified)
	if err != nil {
		return d.Summary() + "\n"
	}
	return textdiff.Render(fd, opts)
}
