// Package templates tracks which generator template produced each output file.
//
// Every templated write carries a Metadata record. When provenance output is
// enabled, records are grouped per output directory into a
// .templates-info.json sidecar mapping file names to their metadata. A
// Tracker consolidates records read back from a project so that each
// (generator, template) pair resolves to one source file.
package templates

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
)

// SidecarName is the provenance file written next to templated outputs.
const SidecarName = ".templates-info.json"

// Kind distinguishes templates rendered once per project from templates
// rendered for many generator instances.
type Kind string

const (
	KindSingleton Kind = "singleton"
	KindInstance  Kind = "instance"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindSingleton || k == KindInstance
}

// Metadata describes the template behind one output file.
type Metadata struct {
	Generator string            `json:"generator"`
	Template  string            `json:"template"`
	Kind      Kind              `json:"kind"`
	Variables map[string]string `json:"variables,omitempty"`
}

// Key identifies a template across a project.
func (m Metadata) Key() string {
	return m.Generator + ":" + m.Template
}

// Sidecar maps file names in one directory to their template metadata.
type Sidecar map[string]Metadata

// Output is one templated file destined for a directory.
type Output struct {
	Path     string
	Metadata Metadata
}

// BuildSidecars groups outputs by directory and returns the sidecar path
// and encoded contents for each directory, keyed by sidecar path.
func BuildSidecars(outputs []Output) (map[string][]byte, error) {
	byDir := make(map[string]Sidecar)
	for _, o := range outputs {
		dir, file := path.Split(o.Path)
		dir = path.Clean(dir)
		if byDir[dir] == nil {
			byDir[dir] = make(Sidecar)
		}
		byDir[dir][file] = o.Metadata
	}

	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	out := make(map[string][]byte, len(dirs))
	for _, dir := range dirs {
		data, err := EncodeSidecar(byDir[dir])
		if err != nil {
			return nil, fmt.Errorf("encode sidecar for %s: %w", dir, err)
		}
		out[path.Join(dir, SidecarName)] = data
	}
	return out, nil
}

// EncodeSidecar renders a sidecar as indented JSON with a trailing newline.
// encoding/json sorts map keys, so output is stable.
func EncodeSidecar(s Sidecar) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeSidecar parses sidecar contents.
func DecodeSidecar(data []byte) (Sidecar, error) {
	var s Sidecar
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", SidecarName, err)
	}
	return s, nil
}
