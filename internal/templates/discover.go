package templates

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/simonhull/baseplate/internal/filesystem"
)

// Discover walks root, reads every sidecar, and consolidates the files they
// describe into a tracker. Files listed in a sidecar but missing on disk
// are ignored.
func Discover(root string) (*Tracker, error) {
	tracker := NewTracker()

	opts := filesystem.WalkOptions{IncludeNames: []string{SidecarName}}
	err := filesystem.Walk(root, opts, func(rel string, d fs.DirEntry) error {
		if d.Name() != SidecarName {
			return nil
		}

		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return err
		}
		sidecar, err := DecodeSidecar(data)
		if err != nil {
			return fmt.Errorf("%s: %w", rel, err)
		}

		dir := path.Dir(rel)
		for name, meta := range sidecar {
			filePath := path.Join(dir, name)
			info, err := os.Stat(filepath.Join(root, filepath.FromSlash(filePath)))
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return err
			}
			if err := tracker.Add(Source{Path: filePath, ModTime: info.ModTime(), Metadata: meta}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tracker, nil
}
