// Package textdiff computes line diffs and unified diff artifacts.
//
// Diff produces the shortest edit script between two line slices using
// Myers' O(ND) algorithm ("An O(ND) Difference Algorithm and Its
// Variations", 1986). Unified, Parse and Apply move those edit scripts in
// and out of unified diff format; Render styles them for the terminal.
package textdiff

import (
	"bytes"
	"strings"
)

// Op is the kind of one edit.
type Op int

const (
	Equal Op = iota
	Insert
	Delete
)

func (o Op) String() string {
	switch o {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	default:
		return "equal"
	}
}

// Edit is one line of an edit script. OldLine and NewLine are zero-based
// indices; the one that does not apply to the op is -1.
type Edit struct {
	Op      Op
	OldLine int
	NewLine int
	Text    string
}

// Lines splits s at every "\n". Join(Lines(s)) == s for any s, so a
// trailing newline survives as a final empty line.
func Lines(s string) []string {
	return strings.Split(s, "\n")
}

// Join is the inverse of Lines.
func Join(lines []string) string {
	return strings.Join(lines, "\n")
}

// IsBinary reports whether data looks binary: a NUL byte within the first 8 KiB.
func IsBinary(data []byte) bool {
	n := len(data)
	if n > 8192 {
		n = 8192
	}
	return bytes.IndexByte(data[:n], 0) != -1
}

// Differ computes edit scripts. It reuses its working buffer between calls
// and is not safe for concurrent use.
type Differ struct {
	v []int
}

// NewDiffer creates a Differ.
func NewDiffer() *Differ {
	return &Differ{}
}

// Diff returns the shortest edit script turning a into b.
func Diff(a, b []string) []Edit {
	return NewDiffer().Diff(a, b)
}

// Diff returns the shortest edit script turning a into b.
func (dg *Differ) Diff(a, b []string) []Edit {
	n, m := len(a), len(b)
	maxD := n + m
	if maxD == 0 {
		return nil
	}

	offset := maxD + 1
	size := 2*maxD + 3
	if cap(dg.v) < size {
		dg.v = make([]int, size)
	}
	v := dg.v[:size]
	for i := range v {
		v[i] = 0
	}

	// trace[d] holds V for diagonals -d-1..d+1 as it was before step d.
	var trace [][]int

forward:
	for d := 0; d <= maxD; d++ {
		snap := make([]int, 2*d+3)
		copy(snap, v[offset-d-1:offset+d+2])
		trace = append(trace, snap)

		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1] // down: insertion
			} else {
				x = v[offset+k-1] + 1 // right: deletion
			}
			y := x - k

			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[offset+k] = x

			if x >= n && y >= m {
				break forward
			}
		}
	}

	return backtrack(a, b, trace)
}

func backtrack(a, b []string, trace [][]int) []Edit {
	x, y := len(a), len(b)
	var rev []Edit

	for d := len(trace) - 1; d >= 0; d-- {
		vd := trace[d]
		at := func(k int) int { return vd[k+d+1] }

		k := x - y
		var prevK int
		if k == -d || (k != d && at(k-1) < at(k+1)) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := at(prevK)
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			x--
			y--
			rev = append(rev, Edit{Op: Equal, OldLine: x, NewLine: y, Text: a[x]})
		}

		if d > 0 {
			if x == prevX {
				y--
				rev = append(rev, Edit{Op: Insert, OldLine: -1, NewLine: y, Text: b[y]})
			} else {
				x--
				rev = append(rev, Edit{Op: Delete, OldLine: x, NewLine: -1, Text: a[x]})
			}
		}
	}

	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

// Change is a maximal run of non-equal edits: old lines [OldStart, OldEnd)
// are replaced by new lines [NewStart, NewEnd).
type Change struct {
	OldStart, OldEnd int
	NewStart, NewEnd int
}

// Changes groups an edit script into changed regions, in order.
func Changes(edits []Edit) []Change {
	var out []Change
	oldPos, newPos := 0, 0
	var cur *Change

	for _, e := range edits {
		switch e.Op {
		case Equal:
			if cur != nil {
				out = append(out, *cur)
				cur = nil
			}
			oldPos++
			newPos++
		case Delete:
			if cur == nil {
				cur = &Change{OldStart: oldPos, OldEnd: oldPos, NewStart: newPos, NewEnd: newPos}
			}
			oldPos++
			cur.OldEnd = oldPos
		case Insert:
			if cur == nil {
				cur = &Change{OldStart: oldPos, OldEnd: oldPos, NewStart: newPos, NewEnd: newPos}
			}
			newPos++
			cur.NewEnd = newPos
		}
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}

// DiffLines returns the changed regions between a and b.
func DiffLines(a, b []string) []Change {
	return Changes(Diff(a, b))
}
