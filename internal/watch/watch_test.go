package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]string
	ch    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan struct{}, 16)}
}

func (r *recorder) handle(_ context.Context, changed []string) {
	r.mu.Lock()
	r.calls = append(r.calls, changed)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *recorder) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-r.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func start(t *testing.T, opts Options) *recorder {
	t.Helper()
	w, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	rec := newRecorder()
	go func() { done <- w.Run(ctx, rec.handle) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return rec
}

func TestWatcher_FilesAreDebounced(t *testing.T) {
	dir := t.TempDir()
	def := filepath.Join(dir, "baseplate.project.yml")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(def, []byte("generator: project\n"), 0o644))

	rec := start(t, Options{Files: []string{def}, Debounce: 50 * time.Millisecond})

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o644))
	for i := range 3 {
		require.NoError(t, os.WriteFile(def, []byte("generator: project\n# edit "+string(rune('a'+i))+"\n"), 0o644))
	}

	changed := rec.wait(t)
	assert.Equal(t, []string{def}, changed)
}

func TestWatcher_DirsAreRecursive(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "templates", "go-package")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	rec := start(t, Options{Dirs: []string{filepath.Join(dir, "templates")}, Debounce: 50 * time.Millisecond})

	tmpl := filepath.Join(nested, "doc.go.tmpl")
	require.NoError(t, os.WriteFile(tmpl, []byte("package {{ .Name }}\n"), 0o644))

	changed := rec.wait(t)
	assert.Contains(t, changed, tmpl)
}

func TestNew_NothingToWatch(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
