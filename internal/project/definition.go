package project

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/simonhull/baseplate/internal/engine"
)

// ErrNotFound is returned by FindRoot when no directory up to the
// filesystem root holds a project definition.
var ErrNotFound = errors.New("project definition not found")

// Definition is a parsed project definition.
type Definition struct {
	// Path is the file the definition was read from.
	Path string
	// Root is the root generator descriptor.
	Root engine.Descriptor
}

// Dir returns the project directory, the one holding the definition.
func (d *Definition) Dir() string {
	return filepath.Dir(d.Path)
}

// Load reads and parses the definition at path.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	root, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return &Definition{Path: path, Root: root}, nil
}

// Parse decodes a definition document. Unknown keys are rejected so that a
// misspelled "children" does not silently drop a subtree.
func Parse(data []byte) (engine.Descriptor, error) {
	var root engine.Descriptor

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return root, errors.New("definition is empty")
		}
		return root, err
	}
	if err := checkDescriptor("", root); err != nil {
		return root, err
	}
	return root, nil
}

func checkDescriptor(parent string, d engine.Descriptor) error {
	id := d.InstanceName()
	if parent != "" {
		id = parent + "/" + id
	}
	if d.Generator == "" {
		if parent == "" {
			return errors.New("root descriptor has no generator")
		}
		return fmt.Errorf("descriptor %q has no generator", id)
	}
	for _, child := range d.Children {
		// Children that only disable or reconfigure a default child may
		// leave the generator out; the engine fills it in from the default.
		if child.Generator == "" && child.Name != "" {
			continue
		}
		if err := checkDescriptor(id, child); err != nil {
			return err
		}
	}
	return nil
}

// Marshal encodes a descriptor tree as a definition document.
func Marshal(root engine.Descriptor) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FindRoot walks up from start to the first directory containing name and
// returns the path of the definition file.
func FindRoot(start, name string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s in %s or any parent: %w", name, start, ErrNotFound)
		}
		dir = parent
	}
}
