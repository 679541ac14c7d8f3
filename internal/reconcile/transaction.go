package reconcile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Transaction is a set of file writes and deletes applied together. If any
// step fails, the steps already applied are undone, restoring previous
// contents.
type Transaction struct {
	root       string
	operations []fileOperation
	applied    []appliedOperation
	committed  bool
}

type fileOperation struct {
	path    string
	content []byte
	mode    os.FileMode
	remove  bool
}

// appliedOperation remembers what was on disk before an operation ran.
type appliedOperation struct {
	path       string
	existed    bool
	previous   []byte
	mode       os.FileMode
	createdDir string
}

// NewTransaction creates a transaction for paths relative to root.
func NewTransaction(root string) *Transaction {
	return &Transaction{root: root}
}

// AddFile stages a file write. A zero mode keeps the existing file's mode,
// or 0644 for a new file.
func (t *Transaction) AddFile(path string, content []byte, mode os.FileMode) {
	t.operations = append(t.operations, fileOperation{path: path, content: content, mode: mode})
}

// DeleteFile stages a file removal.
func (t *Transaction) DeleteFile(path string) {
	t.operations = append(t.operations, fileOperation{path: path, remove: true})
}

// Len returns the number of staged operations.
func (t *Transaction) Len() int { return len(t.operations) }

// Commit applies all staged operations in order. On failure everything
// applied so far is rolled back.
func (t *Transaction) Commit() error {
	if t.committed {
		return fmt.Errorf("transaction already committed")
	}

	for _, op := range t.operations {
		if err := t.apply(op); err != nil {
			t.undo()
			return err
		}
	}

	t.committed = true
	return nil
}

func (t *Transaction) apply(op fileOperation) error {
	full := filepath.Join(t.root, filepath.FromSlash(op.path))

	prev := appliedOperation{path: full, mode: 0o644}
	info, err := os.Stat(full)
	switch {
	case err == nil:
		data, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", op.path, err)
		}
		prev.existed, prev.previous, prev.mode = true, data, info.Mode().Perm()
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to stat %s: %w", op.path, err)
	}

	if op.remove {
		if !prev.existed {
			return nil
		}
		if err := os.Remove(full); err != nil {
			return fmt.Errorf("failed to delete file %s: %w", op.path, err)
		}
		t.applied = append(t.applied, prev)
		return nil
	}

	dir := filepath.Dir(full)
	prev.createdDir = firstMissingDir(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	mode := op.mode
	if mode == 0 {
		mode = prev.mode
	}
	// Record before writing so a partial write is undone too.
	t.applied = append(t.applied, prev)
	if err := os.WriteFile(full, op.content, mode); err != nil {
		return fmt.Errorf("failed to write file %s: %w", op.path, err)
	}
	return nil
}

// firstMissingDir returns the outermost ancestor of dir that does not exist
// yet, or "" when dir exists.
func firstMissingDir(dir string) string {
	missing := ""
	for {
		if _, err := os.Stat(dir); err == nil {
			return missing
		}
		missing = dir
		parent := filepath.Dir(dir)
		if parent == dir {
			return missing
		}
		dir = parent
	}
}

// undo restores applied operations in reverse order. Best effort.
func (t *Transaction) undo() {
	for i := len(t.applied) - 1; i >= 0; i-- {
		a := t.applied[i]
		if a.existed {
			_ = os.WriteFile(a.path, a.previous, a.mode)
		} else {
			_ = os.Remove(a.path)
		}
		if a.createdDir != "" {
			_ = os.RemoveAll(a.createdDir)
		}
	}
	t.applied = nil
}

// Rollback undoes a committed transaction, for when a later step of the run
// fails. It is a no-op after a failed Commit, which already rolled back.
func (t *Transaction) Rollback() {
	t.undo()
	t.committed = false
}
