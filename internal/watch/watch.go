// Package watch reruns work when project inputs change on disk.
//
// Events are debounced: a burst of writes, such as an editor saving through
// a temporary file, produces a single callback listing every path touched
// during the burst.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/simonhull/baseplate/internal/filesystem"
)

// DefaultDebounce is how long the watcher waits for a burst of events to end.
const DefaultDebounce = 200 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// Files are watched individually. Their parent directories are
	// watched so that files replaced by rename are still seen.
	Files []string
	// Dirs are watched recursively, including directories created later.
	Dirs     []string
	Debounce time.Duration
	Logger   *slog.Logger
}

// Handler is called with the sorted absolute paths that changed.
type Handler func(ctx context.Context, changed []string)

// Watcher delivers debounced change notifications.
type Watcher struct {
	fsw      *fsnotify.Watcher
	files    map[string]bool
	dirs     []string
	debounce time.Duration
	logger   *slog.Logger
}

// New starts watching the configured files and directories.
func New(opts Options) (*Watcher, error) {
	if len(opts.Files) == 0 && len(opts.Dirs) == 0 {
		return nil, errors.New("watch: nothing to watch")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		files:    make(map[string]bool),
		debounce: opts.Debounce,
		logger:   opts.Logger,
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.logger == nil {
		w.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	parents := make(map[string]bool)
	for _, f := range opts.Files {
		abs, err := filepath.Abs(f)
		if err != nil {
			fsw.Close()
			return nil, err
		}
		w.files[abs] = true
		parents[filepath.Dir(abs)] = true
	}
	for dir := range parents {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	for _, d := range opts.Dirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			fsw.Close()
			return nil, err
		}
		w.dirs = append(w.dirs, abs)
		if err := w.addTree(abs); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filesystem.Walk(root, filesystem.WalkOptions{DirsOnly: true}, func(rel string, _ fs.DirEntry) error {
		dir := filepath.Join(root, filepath.FromSlash(rel))
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		return nil
	})
}

// relevant reports whether an event path belongs to a watched file or
// lies inside a watched directory.
func (w *Watcher) relevant(p string) bool {
	return w.files[p] || w.inDirs(p)
}

func (w *Watcher) inDirs(p string) bool {
	for _, d := range w.dirs {
		if rel, err := filepath.Rel(d, p); err == nil && filepath.IsLocal(rel) {
			return true
		}
	}
	return false
}

// Run delivers changes to fn until ctx is cancelled. fn runs on the
// calling goroutine, so changes arriving while it runs are batched into
// the next call.
func (w *Watcher) Run(ctx context.Context, fn Handler) error {
	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			if ev.Has(fsnotify.Create) && w.inDirs(ev.Name) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.logger.Warn("watch new directory", "path", ev.Name, "error", err)
					}
				}
			}
			if !w.relevant(ev.Name) {
				continue
			}
			w.logger.Debug("change detected", "path", ev.Name, "op", ev.Op.String())
			pending[ev.Name] = true
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			slices.Sort(changed)
			clear(pending)
			fn(ctx, changed)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
