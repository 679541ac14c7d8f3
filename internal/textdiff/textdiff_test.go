package textdiff

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// applyEdits rebuilds both sides from an edit script.
func applyEdits(edits []Edit) (before, after []string) {
	for _, e := range edits {
		switch e.Op {
		case Equal:
			before = append(before, e.Text)
			after = append(after, e.Text)
		case Delete:
			before = append(before, e.Text)
		case Insert:
			after = append(after, e.Text)
		}
	}
	return before, after
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []string
		wantOps  []Op
		wantDist int
	}{
		{"both empty", nil, nil, nil, 0},
		{"identical", []string{"a", "b"}, []string{"a", "b"}, []Op{Equal, Equal}, 0},
		{"insert at end", []string{"a"}, []string{"a", "b"}, []Op{Equal, Insert}, 1},
		{"delete at start", []string{"a", "b"}, []string{"b"}, []Op{Delete, Equal}, 1},
		{"replace middle", []string{"a", "b", "c"}, []string{"a", "x", "c"}, nil, 2},
		{"all new", nil, []string{"x", "y"}, []Op{Insert, Insert}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edits := Diff(tt.a, tt.b)
			if tt.wantOps != nil {
				ops := make([]Op, len(edits))
				for i, e := range edits {
					ops[i] = e.Op
				}
				assert.Equal(t, tt.wantOps, ops)
			}

			dist := 0
			for _, e := range edits {
				if e.Op != Equal {
					dist++
				}
			}
			assert.Equal(t, tt.wantDist, dist)
		})
	}
}

func TestDiff_RandomRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []string{"a", "b", "c", "d", ""}
	differ := NewDiffer()

	for round := 0; round < 200; round++ {
		a := make([]string, rng.Intn(15))
		for i := range a {
			a[i] = alphabet[rng.Intn(len(alphabet))]
		}
		b := make([]string, rng.Intn(15))
		for i := range b {
			b[i] = alphabet[rng.Intn(len(alphabet))]
		}

		edits := differ.Diff(a, b)
		gotA, gotB := applyEdits(edits)
		assert.Equal(t, len(a), len(gotA), "round %d", round)
		assert.Equal(t, strings.Join(a, "|"), strings.Join(gotA, "|"), "round %d", round)
		assert.Equal(t, strings.Join(b, "|"), strings.Join(gotB, "|"), "round %d", round)

		for _, e := range edits {
			switch e.Op {
			case Equal:
				assert.Equal(t, a[e.OldLine], b[e.NewLine])
			case Delete:
				assert.Equal(t, a[e.OldLine], e.Text)
			case Insert:
				assert.Equal(t, b[e.NewLine], e.Text)
			}
		}
	}
}

func TestChanges(t *testing.T) {
	a := Lines("one\ntwo\nthree\nfour\n")
	b := Lines("one\n2\nthree\nfour\nfive\n")

	changes := DiffLines(a, b)
	require.Len(t, changes, 2)
	assert.Equal(t, Change{OldStart: 1, OldEnd: 2, NewStart: 1, NewEnd: 2}, changes[0])
	assert.Equal(t, Change{OldStart: 4, OldEnd: 4, NewStart: 4, NewEnd: 5}, changes[1])
}

func TestLinesJoin(t *testing.T) {
	for _, s := range []string{"", "a", "a\n", "a\n\nb", "\n"} {
		assert.Equal(t, s, Join(Lines(s)))
	}
}

func TestIsBinary(t *testing.T) {
	assert.False(t, IsBinary([]byte("package main\n")))
	assert.True(t, IsBinary([]byte{0x89, 'P', 'N', 'G', 0x00}))
	assert.False(t, IsBinary(nil))
}

func TestUnified_ParseApplyRoundTrip(t *testing.T) {
	tests := []struct {
		name          string
		before, after string
	}{
		{"single change", "a\nb\nc\n", "a\nB\nc\n"},
		{"append", "a\n", "a\nb\n"},
		{"prepend", "b\n", "a\nb\n"},
		{"trailing newline removed", "a\nb\n", "a\nb"},
		{"from empty", "", "hello\n"},
		{"to empty", "hello\n", ""},
		{"distant changes", numbered(1, 30, map[int]string{2: "X", 27: "Y"}), numbered(1, 30, nil)},
		{"blank lines", "a\n\n\nb\n", "a\n\nb\n\n"},
		{"sql comment replaced", "select 1;\n-- x\nselect 2;\n", "select 1;\n++ y\nselect 2;\n"},
		{"header-like lines", "--- a\n", "+++ b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Unified("generated/file", "working/file", tt.before, tt.after, DefaultContext)
			require.NoError(t, err)
			require.NotNil(t, data)

			fd, err := Parse(data)
			require.NoError(t, err)
			assert.Equal(t, "generated/file", fd.OrigName)

			got, err := Apply(tt.before, fd)
			require.NoError(t, err)
			assert.Equal(t, tt.after, got)

			back, err := ReverseApply(tt.after, fd)
			require.NoError(t, err)
			assert.Equal(t, tt.before, back)
		})
	}
}

func TestUnified_RandomRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	alphabet := []string{"-- x", "++ y", "--", "++", "---", "+++", "a", "b", ""}
	text := func() string {
		lines := make([]string, rng.Intn(10))
		for i := range lines {
			lines[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return strings.Join(lines, "\n")
	}

	for round := 0; round < 500; round++ {
		a, b := text(), text()
		data, err := Unified("generated/f", "working/f", a, b, rng.Intn(4))
		require.NoError(t, err)
		if a == b {
			assert.Nil(t, data)
			continue
		}

		fd, err := Parse(data)
		require.NoError(t, err, "round %d: a=%q b=%q", round, a, b)

		got, err := Apply(a, fd)
		require.NoError(t, err, "round %d", round)
		assert.Equal(t, b, got, "round %d", round)

		back, err := ReverseApply(b, fd)
		require.NoError(t, err, "round %d", round)
		assert.Equal(t, a, back, "round %d", round)
	}
}

func TestUnified_DistantChangesMakeSeparateHunks(t *testing.T) {
	before := numbered(1, 30, nil)
	after := numbered(1, 30, map[int]string{2: "X", 27: "Y"})
	fd := FileDiff("a", "b", before, after, DefaultContext)
	require.NotNil(t, fd)
	assert.Len(t, fd.Hunks, 2)
	assert.Equal(t, int32(1), fd.Hunks[0].OrigStartLine)

	added, removed := Stat(fd)
	assert.Equal(t, 2, added)
	assert.Equal(t, 2, removed)
}

func TestUnified_Equal(t *testing.T) {
	data, err := Unified("a", "b", "same\n", "same\n", DefaultContext)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestApply_Mismatch(t *testing.T) {
	fd := FileDiff("a", "b", "a\nb\nc\n", "a\nB\nc\n", DefaultContext)
	_, err := Apply("completely\ndifferent\n", fd)
	assert.True(t, errors.Is(err, ErrPatchMismatch))
}

func TestRenderText(t *testing.T) {
	out := RenderText("old", "new", []byte("a\n\tb\n"), []byte("a\n\tc\n"), RenderOptions{Width: 80, ShowLineNums: true})
	assert.Contains(t, out, "--- old")
	assert.Contains(t, out, "+++ new")
	assert.Contains(t, out, "-    b")
	assert.Contains(t, out, "+    c")
	assert.Contains(t, out, "   1  a")

	assert.Equal(t, "", RenderText("a", "b", []byte("x"), []byte("x"), RenderOptions{}))
	assert.Equal(t, "Binary files differ\n", RenderText("a", "b", []byte{0}, []byte{1, 0}, RenderOptions{}))
}

func TestTruncateLine(t *testing.T) {
	assert.Equal(t, "short", truncateLine("short", 10))
	assert.Equal(t, "abcdefg...", truncateLine(strings.Repeat("abcdefghij", 2), 10))
}

func numbered(from, to int, override map[int]string) string {
	var b strings.Builder
	for i := from; i <= to; i++ {
		if v, ok := override[i]; ok {
			b.WriteString(v)
		} else {
			fmt.Fprintf(&b, "line %d", i)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
