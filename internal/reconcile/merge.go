package reconcile

import (
	"strings"

	"github.com/simonhull/baseplate/internal/textdiff"
)

// Conflict markers written around regions that could not be merged.
const (
	MarkerExisting  = "<<<<<<< existing"
	MarkerSeparator = "======="
	MarkerGenerated = ">>>>>>> baseplate"
)

// MergeResult is the outcome of a line merge.
type MergeResult struct {
	Text      string
	Conflicts int
}

// HasConflict reports whether the merge left conflict markers.
func (r MergeResult) HasConflict() bool {
	return r.Conflicts > 0
}

// MergeTwoWay merges generated into existing without a common ancestor.
// Lines shared by both (per their longest common subsequence) are kept and
// every changed run becomes a conflict: the existing lines, then the
// generated lines. Merging a text with itself returns it unchanged.
func MergeTwoWay(existing, generated string) MergeResult {
	if existing == generated {
		return MergeResult{Text: existing}
	}

	lines, trailing := splitTexts(existing, generated)
	a, b := lines[0], lines[1]
	changes := textdiff.DiffLines(a, b)

	out := make([]string, 0, len(a)+len(b)+3*len(changes))
	pos := 0
	for _, c := range changes {
		out = append(out, a[pos:c.OldStart]...)
		out = appendConflict(out, a[c.OldStart:c.OldEnd], b[c.NewStart:c.NewEnd])
		pos = c.OldEnd
	}
	out = append(out, a[pos:]...)

	return MergeResult{Text: joinText(out, trailing), Conflicts: len(changes)}
}

// MergeThreeWay merges the user's edits (base→existing) with the
// generator's edits (base→generated). Changes to disjoint regions of base
// combine; identical changes on both sides are taken once; differing
// changes to overlapping regions are wrapped in conflict markers.
func MergeThreeWay(base, existing, generated string) MergeResult {
	switch {
	case existing == generated:
		return MergeResult{Text: existing}
	case base == existing:
		return MergeResult{Text: generated}
	case base == generated:
		return MergeResult{Text: existing}
	}

	lines, trailing := splitTexts(base, existing, generated)
	o, a, b := lines[0], lines[1], lines[2]
	ours := textdiff.DiffLines(o, a)
	theirs := textdiff.DiffLines(o, b)

	var out []string
	conflicts := 0
	pos := 0
	i, j := 0, 0

	for i < len(ours) || j < len(theirs) {
		// Seed the region with the earliest change.
		var start int
		switch {
		case j >= len(theirs) || (i < len(ours) && ours[i].OldStart <= theirs[j].OldStart):
			start = ours[i].OldStart
		default:
			start = theirs[j].OldStart
		}
		end := start

		var ca, cb []textdiff.Change
		for {
			grew := false
			if i < len(ours) && overlaps(ours[i], start, end, len(ca)+len(cb) == 0) {
				ca = append(ca, ours[i])
				end = max(end, ours[i].OldEnd)
				i++
				grew = true
			}
			if j < len(theirs) && overlaps(theirs[j], start, end, len(ca)+len(cb) == 0) {
				cb = append(cb, theirs[j])
				end = max(end, theirs[j].OldEnd)
				j++
				grew = true
			}
			if !grew {
				break
			}
		}

		out = append(out, o[pos:start]...)
		pos = end

		switch {
		case len(cb) == 0:
			out = append(out, side(a, ca, start, end)...)
		case len(ca) == 0:
			out = append(out, side(b, cb, start, end)...)
		default:
			sa, sb := side(a, ca, start, end), side(b, cb, start, end)
			if equalLines(sa, sb) {
				out = append(out, sa...)
			} else {
				out = appendConflict(out, sa, sb)
				conflicts++
			}
		}
	}
	out = append(out, o[pos:]...)

	return MergeResult{Text: joinText(out, trailing), Conflicts: conflicts}
}

// splitTexts splits each text into lines. When all of them end in a newline
// the final newline is set aside, so conflict blocks never end on a dangling
// empty line.
func splitTexts(texts ...string) ([][]string, bool) {
	trailing := true
	for _, t := range texts {
		if !strings.HasSuffix(t, "\n") {
			trailing = false
			break
		}
	}
	out := make([][]string, len(texts))
	for i, t := range texts {
		if trailing {
			t = t[:len(t)-1]
		}
		out[i] = textdiff.Lines(t)
	}
	return out, trailing
}

func joinText(lines []string, trailing bool) string {
	text := textdiff.Join(lines)
	if trailing {
		text += "\n"
	}
	return text
}

// overlaps reports whether change c touches the base region [start, end).
// Touching at a boundary counts when either side is an insertion, since the
// relative order of the two edits would be ambiguous.
func overlaps(c textdiff.Change, start, end int, first bool) bool {
	if first {
		return c.OldStart == start
	}
	if c.OldStart < end || c.OldStart == start {
		return true
	}
	return c.OldStart == end && (c.OldStart == c.OldEnd || start == end)
}

// side returns the lines a derived text holds for base region [start, end),
// given the changes that fall inside it.
func side(lines []string, changes []textdiff.Change, start, end int) []string {
	first, last := changes[0], changes[len(changes)-1]
	from := first.NewStart - (first.OldStart - start)
	to := last.NewEnd + (end - last.OldEnd)
	return lines[from:to]
}

func appendConflict(out, existing, generated []string) []string {
	out = append(out, MarkerExisting)
	out = append(out, existing...)
	out = append(out, MarkerSeparator)
	out = append(out, generated...)
	return append(out, MarkerGenerated)
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// HasConflictMarkers reports whether text still contains an unresolved
// conflict region.
func HasConflictMarkers(text string) bool {
	return CountConflictMarkers(text) > 0
}

// CountConflictMarkers returns the number of complete conflict regions in
// text.
func CountConflictMarkers(text string) int {
	n := 0
	open := false
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, MarkerExisting):
			open = true
		case open && strings.HasPrefix(line, MarkerGenerated):
			n++
			open = false
		}
	}
	return n
}
