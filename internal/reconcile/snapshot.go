package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/simonhull/baseplate/internal/textdiff"
)

// Snapshot directory layout.
const (
	DefaultSnapshotDir = ".baseplate"
	ManifestName       = "manifest.json"
	DiffsDir           = "diffs"
	CleanDir           = "clean"
)

// Manifest is the persisted record of the previous generation.
type Manifest struct {
	Files ManifestFiles `json:"files"`
}

// ManifestFiles groups tracked paths by their state on disk.
type ManifestFiles struct {
	// Added lists every generated path the snapshot tracks.
	Added []string `json:"added"`
	// Modified lists tracked paths whose working copy diverged from the
	// generated text.
	Modified []ModifiedFile `json:"modified"`
	// Deleted lists generated paths the user removed.
	Deleted []string `json:"deleted"`
}

// ModifiedFile points at the diff artifact (generated → working) for a path.
type ModifiedFile struct {
	Path     string `json:"path"`
	DiffFile string `json:"diffFile"`
}

// Snapshot is a loaded snapshot directory.
type Snapshot struct {
	Manifest Manifest

	dir      string
	exists   bool
	tracked  map[string]bool
	modified map[string]string
	deleted  map[string]bool
}

// EmptySnapshot returns a snapshot that tracks nothing.
func EmptySnapshot() *Snapshot {
	return newSnapshot("", Manifest{})
}

func newSnapshot(dir string, m Manifest) *Snapshot {
	s := &Snapshot{
		Manifest: m,
		dir:      dir,
		tracked:  make(map[string]bool),
		modified: make(map[string]string),
		deleted:  make(map[string]bool),
	}
	for _, p := range m.Files.Added {
		s.tracked[p] = true
	}
	for _, mf := range m.Files.Modified {
		s.tracked[mf.Path] = true
		s.modified[mf.Path] = mf.DiffFile
	}
	for _, p := range m.Files.Deleted {
		s.deleted[p] = true
	}
	return s
}

// LoadSnapshot reads the snapshot in dir. A missing snapshot loads as empty.
// A commit interrupted between its two renames is completed first.
func LoadSnapshot(dir string) (*Snapshot, error) {
	if err := recoverSnapshot(dir); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if errors.Is(err, fs.ErrNotExist) {
		s := EmptySnapshot()
		s.dir = dir
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse snapshot manifest %s: %w", filepath.Join(dir, ManifestName), err)
	}
	s := newSnapshot(dir, m)
	s.exists = true
	return s, nil
}

// recoverSnapshot reinstalls a snapshot left aside by an interrupted Commit.
// The moved-aside snapshot only exists once its replacement was fully
// written, so the replacement wins when it is still there.
func recoverSnapshot(dir string) error {
	if _, err := os.Lstat(dir); !errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	parent := filepath.Dir(dir)
	entries, err := os.ReadDir(parent)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("scan for interrupted snapshot: %w", err)
	}

	prefix := "." + filepath.Base(dir) + "-new-"
	var aside []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), "-old") {
			aside = append(aside, filepath.Join(parent, e.Name()))
		}
	}
	if len(aside) == 0 {
		return nil
	}
	sort.Strings(aside)
	old := aside[len(aside)-1]

	src := old
	if tmp := strings.TrimSuffix(old, "-old"); fileExists(filepath.Join(tmp, ManifestName)) {
		src = tmp
	}
	if err := os.Rename(src, dir); err != nil {
		return fmt.Errorf("recover interrupted snapshot: %w", err)
	}
	if src != old {
		_ = os.RemoveAll(old)
	}
	return nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Exists reports whether a manifest was found on disk.
func (s *Snapshot) Exists() bool { return s.exists }

// Dir returns the snapshot directory.
func (s *Snapshot) Dir() string { return s.dir }

// Tracked reports whether path was generated by the previous run.
func (s *Snapshot) Tracked(p string) bool { return s.tracked[p] }

// IsDeleted reports whether the user deleted a generated path.
func (s *Snapshot) IsDeleted(p string) bool { return s.deleted[p] }

// IsModified reports whether path diverged from the generated text, and
// the name of its diff artifact.
func (s *Snapshot) IsModified(p string) (string, bool) {
	name, ok := s.modified[p]
	return name, ok
}

// Paths returns every tracked path, sorted.
func (s *Snapshot) Paths() []string {
	out := make([]string, 0, len(s.tracked))
	for p := range s.tracked {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// DeletedPaths returns the user-deleted paths, sorted.
func (s *Snapshot) DeletedPaths() []string {
	out := make([]string, 0, len(s.deleted))
	for p := range s.deleted {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Diff loads the diff artifact of a modified path.
func (s *Snapshot) Diff(p string) (*diff.FileDiff, error) {
	name, ok := s.modified[p]
	if !ok {
		return nil, fmt.Errorf("%s is not modified in the snapshot", p)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, DiffsDir, name))
	if err != nil {
		return nil, fmt.Errorf("read diff for %s: %w", p, err)
	}
	return textdiff.Parse(data)
}

// Clean returns the previously generated contents of path from the clean
// store. ok is false when no copy is stored.
func (s *Snapshot) Clean(p string) (data []byte, ok bool, err error) {
	if s.dir == "" || !s.tracked[p] {
		return nil, false, nil
	}
	data, err = os.ReadFile(filepath.Join(s.dir, CleanDir, filepath.FromSlash(p)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read clean copy of %s: %w", p, err)
	}
	return data, true, nil
}

// Base recovers the previously generated text of a tracked path: the clean
// copy when stored, else the working text with the recorded user diff
// reversed, else the working text itself when it was unmodified.
func (s *Snapshot) Base(p string, working []byte) (string, bool) {
	if !s.tracked[p] {
		return "", false
	}
	if data, ok, err := s.Clean(p); err == nil && ok {
		return string(data), true
	}
	if _, modified := s.modified[p]; !modified {
		return string(working), true
	}
	fd, err := s.Diff(p)
	if err != nil {
		return "", false
	}
	base, err := textdiff.ReverseApply(string(working), fd)
	if err != nil {
		return "", false
	}
	return base, true
}

// SnapshotBuilder accumulates the snapshot of the current run.
type SnapshotBuilder struct {
	entries map[string]*snapshotEntry
}

type snapshotEntry struct {
	clean   []byte
	diff    []byte
	deleted bool
}

// NewSnapshotBuilder creates an empty builder.
func NewSnapshotBuilder() *SnapshotBuilder {
	return &SnapshotBuilder{entries: make(map[string]*snapshotEntry)}
}

// Track records a generated path. final is what ended up on disk; when it
// differs from generated a unified diff artifact is stored. Binary files
// are tracked without a diff.
func (b *SnapshotBuilder) Track(p string, generated, final []byte) error {
	e := &snapshotEntry{clean: generated}
	if !textdiff.IsBinary(generated) && !textdiff.IsBinary(final) && string(generated) != string(final) {
		data, err := textdiff.Unified(path.Join("generated", p), path.Join("working", p), string(generated), string(final), textdiff.DefaultContext)
		if err != nil {
			return fmt.Errorf("diff %s: %w", p, err)
		}
		e.diff = data
	}
	b.entries[p] = e
	return nil
}

// Delete records a generated path the user deleted.
func (b *SnapshotBuilder) Delete(p string) {
	b.entries[p] = &snapshotEntry{deleted: true}
}

// Len returns the number of recorded paths.
func (b *SnapshotBuilder) Len() int { return len(b.entries) }

// Manifest returns the manifest the builder would write.
func (b *SnapshotBuilder) Manifest() Manifest {
	paths := make([]string, 0, len(b.entries))
	for p := range b.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	m := Manifest{Files: ManifestFiles{
		Added:    []string{},
		Modified: []ModifiedFile{},
		Deleted:  []string{},
	}}
	for _, p := range paths {
		e := b.entries[p]
		switch {
		case e.deleted:
			m.Files.Deleted = append(m.Files.Deleted, p)
		case e.diff != nil:
			m.Files.Modified = append(m.Files.Modified, ModifiedFile{Path: p, DiffFile: diffFileName(p)})
		default:
			m.Files.Added = append(m.Files.Added, p)
		}
	}
	return m
}

// diffFileName maps a path to a flat, collision-free artifact name.
func diffFileName(p string) string {
	return url.PathEscape(p) + ".diff"
}

// Commit replaces the snapshot in dir. The new snapshot is written to a
// temporary sibling directory and swapped in by rename; if the swap fails
// the previous snapshot is restored.
func (b *SnapshotBuilder) Commit(dir string) error {
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create snapshot parent: %w", err)
	}

	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+"-new-*")
	if err != nil {
		return fmt.Errorf("create temporary snapshot: %w", err)
	}
	if err := b.writeTo(tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return err
	}

	var old string
	if _, err := os.Stat(dir); err == nil {
		old = tmp + "-old"
		if err := os.Rename(dir, old); err != nil {
			_ = os.RemoveAll(tmp)
			return fmt.Errorf("move previous snapshot aside: %w", err)
		}
	}
	if err := os.Rename(tmp, dir); err != nil {
		if old != "" {
			_ = os.Rename(old, dir)
		}
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("install snapshot: %w", err)
	}
	if old != "" {
		_ = os.RemoveAll(old)
	}
	return nil
}

func (b *SnapshotBuilder) writeTo(dir string) error {
	m := b.Manifest()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestName), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write snapshot manifest: %w", err)
	}

	if len(m.Files.Modified) > 0 {
		if err := os.MkdirAll(filepath.Join(dir, DiffsDir), 0o755); err != nil {
			return fmt.Errorf("create snapshot diffs: %w", err)
		}
	}
	for _, mf := range m.Files.Modified {
		if err := os.WriteFile(filepath.Join(dir, DiffsDir, mf.DiffFile), b.entries[mf.Path].diff, 0o644); err != nil {
			return fmt.Errorf("write diff for %s: %w", mf.Path, err)
		}
	}

	for p, e := range b.entries {
		if e.deleted {
			continue
		}
		dst := filepath.Join(dir, CleanDir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("create clean store for %s: %w", p, err)
		}
		if err := os.WriteFile(dst, e.clean, 0o644); err != nil {
			return fmt.Errorf("write clean copy of %s: %w", p, err)
		}
	}
	return nil
}
