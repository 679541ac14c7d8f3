package gensync

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/simonhull/baseplate/internal/config"
	"github.com/simonhull/baseplate/internal/reconcile"
)

// SaveSnapshot records the current working copy as the user's version of
// every tracked file, without generating. Files the user deleted since the
// last run are recorded as deleted.
func SaveSnapshot(cfg *config.Config) (*reconcile.Manifest, error) {
	snap, err := reconcile.LoadSnapshot(cfg.SnapshotPath())
	if err != nil {
		return nil, err
	}
	if !snap.Exists() {
		return nil, fmt.Errorf("no snapshot in %s; run generate first", cfg.SnapshotDir)
	}

	b := reconcile.NewSnapshotBuilder()
	for _, p := range snap.DeletedPaths() {
		b.Delete(p)
	}
	for _, p := range snap.Paths() {
		working, err := readWorking(cfg.Dir, p)
		if err != nil {
			return nil, err
		}
		if working == nil {
			b.Delete(p)
			continue
		}
		base, ok := snapshotBase(snap, p, working)
		if !ok {
			return nil, fmt.Errorf("snapshot for %s cannot be recovered; run generate to rebuild it", p)
		}
		if err := b.Track(p, base, working); err != nil {
			return nil, err
		}
	}

	if err := b.Commit(cfg.SnapshotPath()); err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}
	m := b.Manifest()
	return &m, nil
}

// Drift compares the working copy of every tracked file with what was
// last generated. Unchanged files are omitted.
func Drift(cfg *config.Config) ([]*reconcile.FileDiff, error) {
	snap, err := reconcile.LoadSnapshot(cfg.SnapshotPath())
	if err != nil {
		return nil, err
	}

	var out []*reconcile.FileDiff
	for _, p := range snap.Paths() {
		working, err := readWorking(cfg.Dir, p)
		if err != nil {
			return nil, err
		}
		base, ok := snapshotBase(snap, p, working)
		if !ok {
			continue
		}
		d, err := reconcile.DiffFile(p, base, working)
		if err != nil {
			return nil, err
		}
		if d != nil {
			out = append(out, d)
		}
	}
	return out, nil
}

func snapshotBase(snap *reconcile.Snapshot, p string, working []byte) ([]byte, bool) {
	if clean, ok, err := snap.Clean(p); err == nil && ok {
		return clean, true
	}
	if working == nil {
		return nil, false
	}
	base, ok := snap.Base(p, working)
	return []byte(base), ok
}

// readWorking returns nil without error for a missing file.
func readWorking(root, p string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(p)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}
