package project

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonhull/baseplate/internal/engine"
)

const shopDefinition = `name: shop
generator: project
config:
  module: github.com/acme/shop
  goVersion: "1.25"
children:
  - name: api
    generator: go-package
    config:
      path: internal/api
      ports:
        http: 8080
  - name: readme
    disabled: true
`

func TestParse(t *testing.T) {
	root, err := Parse([]byte(shopDefinition))
	require.NoError(t, err)

	assert.Equal(t, "shop", root.Name)
	assert.Equal(t, "project", root.Generator)
	assert.Equal(t, "github.com/acme/shop", root.Config["module"])
	require.Len(t, root.Children, 2)

	api := root.Children[0]
	assert.Equal(t, "go-package", api.Generator)
	assert.Equal(t, map[string]any{"http": 8080}, api.Config["ports"])
	assert.True(t, root.Children[1].Disabled)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"empty", "", "definition is empty"},
		{"no generator", "name: shop\n", "root descriptor has no generator"},
		{"child without name or generator", "generator: project\nchildren:\n  - config: {a: 1}\n", `descriptor "project/" has no generator`},
		{"unknown key", "generator: project\nchildrn: []\n", "field childrn not found"},
		{"bad yaml", "generator: [project\n", "yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	root := engine.Descriptor{
		Generator: "project",
		Config:    map[string]any{"module": "example.com/x"},
		Children:  []engine.Descriptor{{Name: "core", Generator: "go-package"}},
	}
	data, err := Marshal(root)
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, root, parsed)
}

func TestLoadAndFindRoot(t *testing.T) {
	dir := t.TempDir()
	defPath := filepath.Join(dir, "baseplate.project.yml")
	require.NoError(t, os.WriteFile(defPath, []byte(shopDefinition), 0o644))
	nested := filepath.Join(dir, "internal", "api")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := FindRoot(nested, "baseplate.project.yml")
	require.NoError(t, err)
	assert.Equal(t, defPath, found)

	def, err := Load(found)
	require.NoError(t, err)
	assert.Equal(t, dir, def.Dir())
	assert.Equal(t, "shop", def.Root.Name)

	_, err = Load(filepath.Join(dir, "missing.yml"))
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = FindRoot(t.TempDir(), "no-such-definition.yml")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDetectModule(t *testing.T) {
	dir := t.TempDir()

	info, err := DetectModule(dir)
	require.NoError(t, err)
	assert.Nil(t, info, "missing go.mod is not an error")

	gomod := "module github.com/acme/shop\n\ngo 1.25.1\n\nrequire github.com/spf13/cobra v1.10.1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte(gomod), 0o644))

	info, err = DetectModule(dir)
	require.NoError(t, err)
	assert.Equal(t, "github.com/acme/shop", info.Path)
	assert.Equal(t, "1.25.1", info.GoVersion)
	assert.Equal(t, []string{"github.com/spf13/cobra"}, info.Requires)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("go 1.25\n"), 0o644))
	_, err = DetectModule(dir)
	assert.ErrorContains(t, err, "no module directive")
}

func TestApplyModuleDefaults(t *testing.T) {
	def := &Definition{Root: engine.Descriptor{Generator: "project"}}
	ApplyModuleDefaults(def, &ModuleInfo{Path: "example.com/detected", GoVersion: "1.25"})
	assert.Equal(t, "example.com/detected", def.Root.Config["module"])
	assert.Equal(t, "1.25", def.Root.Config["goVersion"])

	def = &Definition{Root: engine.Descriptor{Config: map[string]any{"module": "example.com/explicit"}}}
	ApplyModuleDefaults(def, &ModuleInfo{Path: "example.com/detected"})
	assert.Equal(t, "example.com/explicit", def.Root.Config["module"])

	ApplyModuleDefaults(def, nil)
	assert.Len(t, def.Root.Config, 1)
}
