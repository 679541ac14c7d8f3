package reconcile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonhull/baseplate/internal/textdiff"
)

var renderPlain = textdiff.RenderOptions{Width: 120}

func TestSnapshot_LoadMissing(t *testing.T) {
	snap, err := LoadSnapshot(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.False(t, snap.Exists())
	assert.Empty(t, snap.Paths())
	assert.False(t, snap.Tracked("anything"))
}

func TestSnapshot_CommitAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".baseplate")

	b := NewSnapshotBuilder()
	require.NoError(t, b.Track("src/app.go", []byte("package app\n"), []byte("package app\n")))
	require.NoError(t, b.Track("src/edited.go", []byte("a\nb\n"), []byte("a\nb\nuser\n")))
	b.Delete("gone.txt")
	require.NoError(t, b.Commit(dir))

	raw, err := os.ReadFile(filepath.Join(dir, ManifestName))
	require.NoError(t, err)
	var generic map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.JSONEq(t, `["src/app.go"]`, string(generic["files"]["added"]))
	assert.JSONEq(t, `[{"path":"src/edited.go","diffFile":"src%2Fedited.go.diff"}]`, string(generic["files"]["modified"]))
	assert.JSONEq(t, `["gone.txt"]`, string(generic["files"]["deleted"]))

	snap, err := LoadSnapshot(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/app.go", "src/edited.go"}, snap.Paths())
	assert.Equal(t, []string{"gone.txt"}, snap.DeletedPaths())

	fd, err := snap.Diff("src/edited.go")
	require.NoError(t, err)
	assert.Equal(t, "generated/src/edited.go", fd.OrigName)

	clean, ok, err := snap.Clean("src/edited.go")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a\nb\n", string(clean))
}

func TestSnapshot_CommitReplacesPrevious(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".baseplate")

	first := NewSnapshotBuilder()
	require.NoError(t, first.Track("old.txt", []byte("x"), []byte("x")))
	require.NoError(t, first.Commit(dir))

	second := NewSnapshotBuilder()
	require.NoError(t, second.Track("new.txt", []byte("y"), []byte("y")))
	require.NoError(t, second.Commit(dir))

	snap, err := LoadSnapshot(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"new.txt"}, snap.Paths())
	_, err = os.Stat(filepath.Join(dir, CleanDir, "old.txt"))
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(filepath.Dir(dir))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary snapshot directories are cleaned up")
}

func TestSnapshot_LoadRecoversInterruptedCommit(t *testing.T) {
	tests := []struct {
		name        string
		replacement bool
		want        []string
	}{
		{"previous snapshot moved aside", false, []string{"old.txt"}},
		{"replacement written but not installed", true, []string{"new.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			dir := filepath.Join(root, ".baseplate")

			first := NewSnapshotBuilder()
			require.NoError(t, first.Track("old.txt", []byte("x\n"), []byte("x\n")))
			require.NoError(t, first.Commit(dir))

			// The state Commit leaves behind when it stops between its renames.
			tmp := filepath.Join(root, ".baseplate-new-123")
			require.NoError(t, os.Rename(dir, tmp+"-old"))
			if tt.replacement {
				second := NewSnapshotBuilder()
				require.NoError(t, second.Track("new.txt", []byte("y\n"), []byte("y\n")))
				require.NoError(t, second.Commit(tmp))
			}

			snap, err := LoadSnapshot(dir)
			require.NoError(t, err)
			assert.True(t, snap.Exists())
			assert.Equal(t, tt.want, snap.Paths())

			entries, err := os.ReadDir(root)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, ".baseplate", entries[0].Name())
		})
	}
}

func TestSnapshot_BaseRecovery(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".baseplate")
	generated := "one\ntwo\nthree\n"
	working := "one\ntwo\nthree\nuser\n"

	b := NewSnapshotBuilder()
	require.NoError(t, b.Track("edited.txt", []byte(generated), []byte(working)))
	require.NoError(t, b.Track("plain.txt", []byte("plain\n"), []byte("plain\n")))
	require.NoError(t, b.Commit(dir))

	// Without the clean store the base is rebuilt from the diff artifact.
	require.NoError(t, os.RemoveAll(filepath.Join(dir, CleanDir)))
	snap, err := LoadSnapshot(dir)
	require.NoError(t, err)

	base, ok := snap.Base("edited.txt", []byte(working))
	require.True(t, ok)
	assert.Equal(t, generated, base)

	base, ok = snap.Base("plain.txt", []byte("plain\n"))
	require.True(t, ok)
	assert.Equal(t, "plain\n", base)

	// A working copy the diff no longer applies to has no base.
	_, ok = snap.Base("edited.txt", []byte("rewritten entirely\n"))
	assert.False(t, ok)

	_, ok = snap.Base("untracked.txt", nil)
	assert.False(t, ok)
}

func TestSnapshot_BaseRecoveryWithDashedLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".baseplate")
	generated := "create table t (id int);\n-- x\ncreate index i on t (id);\n"
	working := "create table t (id int);\n++ y\ncreate index i on t (id);\n"

	b := NewSnapshotBuilder()
	require.NoError(t, b.Track("schema.sql", []byte(generated), []byte(working)))
	require.NoError(t, b.Commit(dir))
	require.NoError(t, os.RemoveAll(filepath.Join(dir, CleanDir)))

	snap, err := LoadSnapshot(dir)
	require.NoError(t, err)
	_, err = snap.Diff("schema.sql")
	require.NoError(t, err)

	base, ok := snap.Base("schema.sql", []byte(working))
	require.True(t, ok)
	assert.Equal(t, generated, base)
}

func TestTransaction_CommitAndRollback(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "existing.txt"), []byte("before"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "remove.txt"), []byte("bye"), 0o644))

	tx := NewTransaction(root)
	tx.AddFile("existing.txt", []byte("after"), 0)
	tx.AddFile("nested/dir/new.txt", []byte("new"), 0)
	tx.DeleteFile("remove.txt")
	assert.Equal(t, 3, tx.Len())
	require.NoError(t, tx.Commit())

	data, err := os.ReadFile(filepath.Join(root, "existing.txt"))
	require.NoError(t, err)
	assert.Equal(t, "after", string(data))
	info, err := os.Stat(filepath.Join(root, "existing.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "mode is preserved")
	_, err = os.Stat(filepath.Join(root, "remove.txt"))
	assert.True(t, os.IsNotExist(err))

	assert.Error(t, tx.Commit(), "second commit fails")

	tx.Rollback()
	data, err = os.ReadFile(filepath.Join(root, "existing.txt"))
	require.NoError(t, err)
	assert.Equal(t, "before", string(data))
	data, err = os.ReadFile(filepath.Join(root, "remove.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bye", string(data))
	_, err = os.Stat(filepath.Join(root, "nested"))
	assert.True(t, os.IsNotExist(err), "created directories are removed")
}

func TestTransaction_FailedCommitRestores(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("original"), 0o644))
	// A file where a directory is needed makes the second write fail.
	require.NoError(t, os.WriteFile(filepath.Join(root, "blocker"), nil, 0o644))

	tx := NewTransaction(root)
	tx.AddFile("a.txt", []byte("changed"), 0)
	tx.AddFile("blocker/b.txt", []byte("x"), 0)
	require.Error(t, tx.Commit())

	data, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestDiffFile(t *testing.T) {
	d, err := DiffFile("same.txt", []byte("x"), []byte("x"))
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = DiffFile("new.txt", nil, []byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, Added, d.Kind)
	assert.False(t, d.Binary)
	assert.Contains(t, d.Render(renderPlain), "+hello")

	d, err = DiffFile("old.bin", []byte{0, 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, Deleted, d.Kind)
	assert.True(t, d.Binary)
	assert.Equal(t, "deleted old.bin (binary)", d.Summary())

	d, err = DiffFile("img.bin", []byte{0, 1}, []byte{0, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "modified img.bin (binary, 2 → 3 bytes)", d.Summary())

	d, err = DiffFile("a.txt", []byte("a\nb\n"), []byte("a\nc\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, d.LinesAdded)
	assert.Equal(t, 1, d.LinesRemoved)
	out := d.Render(renderPlain)
	assert.Contains(t, out, "-b")
	assert.Contains(t, out, "+c")
}
