package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonhull/baseplate/internal/schema"
)

type appConfig struct {
	Module  string `mapstructure:"module" validate:"required,gomodpath"`
	Version string `mapstructure:"version" validate:"omitempty,goversion"`
}

type pkgConfig struct {
	Path  string `mapstructure:"path" validate:"required,relpath"`
	Label string `mapstructure:"label"`
}

// testRegistry builds generators whose instances carry no tasks unless
// tasks is set for their generator name.
func testRegistry(t *testing.T, tasks map[string]func(InstanceContext) []*Task, defaults map[string][]Descriptor) *Registry {
	t.Helper()

	inst := func(name string) func(InstanceContext) (Instance, error) {
		return func(ic InstanceContext) (Instance, error) {
			var ts []*Task
			if f := tasks[name]; f != nil {
				ts = f(ic)
			}
			return Instance{Tasks: ts, Children: defaults[name]}, nil
		}
	}

	reg := NewRegistry()
	require.NoError(t, reg.Register(
		&Generator{
			Name:        "app",
			NewConfig:   func() any { return &appConfig{Version: "1.25"} },
			Instantiate: inst("app"),
		},
		&Generator{
			Name:        "pkg",
			IsPackage:   true,
			NewConfig:   func() any { return &pkgConfig{} },
			Instantiate: inst("pkg"),
		},
		&Generator{
			Name:        "leaf",
			Instantiate: inst("leaf"),
		},
	))
	return reg
}

func newTestEngine(t *testing.T, reg *Registry) *Engine {
	t.Helper()
	e, err := New(reg, Options{})
	require.NoError(t, err)
	return e
}

func TestBuildTree_DefaultChildrenAndOverrides(t *testing.T) {
	reg := testRegistry(t, nil, map[string][]Descriptor{
		"app": {
			{Name: "api", Generator: "pkg", Config: map[string]any{"path": "internal/api", "label": "default"}},
			{Name: "web", Generator: "pkg", Config: map[string]any{"path": "internal/web"}},
		},
		"pkg": {{Generator: "leaf"}},
	})
	e := newTestEngine(t, reg)

	tree, err := e.BuildTree(Descriptor{
		Name:      "demo",
		Generator: "app",
		Config:    map[string]any{"module": "example.com/demo"},
		Children: []Descriptor{
			{Name: "api", Config: map[string]any{"label": "custom"}},
			{Name: "web", Disabled: true},
			{Name: "cli", Generator: "pkg", Config: map[string]any{"path": "cmd/demo"}},
		},
	})
	require.NoError(t, err)

	var ids []string
	for _, n := range tree.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"demo", "demo/api", "demo/api/leaf", "demo/cli", "demo/cli/leaf"}, ids)

	api, ok := tree.Node("demo/api")
	require.True(t, ok)
	cfg := api.Config.(*pkgConfig)
	assert.Equal(t, "internal/api", cfg.Path, "default config survives")
	assert.Equal(t, "custom", cfg.Label, "caller config overlays")
	assert.True(t, api.IsPackage)
	assert.Equal(t, 0, api.Parent)
	assert.Equal(t, []int{2}, api.Children)

	root := tree.Root()
	assert.Equal(t, "1.25", root.Config.(*appConfig).Version, "struct defaults are kept")
	assert.Equal(t, []int{0}, tree.Ancestors(2)[1:])
}

func TestBuildTree_ValidationReportsEveryField(t *testing.T) {
	reg := testRegistry(t, nil, nil)
	e := newTestEngine(t, reg)

	_, err := e.BuildTree(Descriptor{
		Name:      "demo",
		Generator: "app",
		Config:    map[string]any{"version": "one"},
		Children: []Descriptor{
			{Name: "bad", Generator: "pkg", Config: map[string]any{"path": "/abs"}},
			{Name: "empty", Generator: "pkg"},
		},
	})
	require.Error(t, err)

	var ve schema.ValidationErrors
	require.True(t, errors.As(err, &ve))
	assert.ElementsMatch(t,
		[]string{"demo.module", "demo.version", "demo/bad.path", "demo/empty.path"},
		ve.Fields())
}

func TestBuildTree_UnknownConfigKey(t *testing.T) {
	e := newTestEngine(t, testRegistry(t, nil, nil))

	_, err := e.BuildTree(Descriptor{Generator: "leaf", Config: map[string]any{"x": 1}})
	var ve schema.ValidationErrors
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "leaf", ve[0].Field)

	_, err = e.BuildTree(Descriptor{Generator: "app", Config: map[string]any{"module": "example.com/x", "extra": true}})
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve[0].Message, "extra")
}

func TestBuildTree_DuplicateGeneratorNames(t *testing.T) {
	e := newTestEngine(t, testRegistry(t, nil, nil))

	_, err := e.BuildTree(Descriptor{
		Name:      "demo",
		Generator: "app",
		Config:    map[string]any{"module": "example.com/demo"},
		Children: []Descriptor{
			{Generator: "leaf"},
			{Generator: "leaf"},
		},
	})
	var dup *DuplicateGeneratorError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "demo", dup.Parent)
	assert.Equal(t, "leaf", dup.Name)
	assert.ErrorIs(t, err, ErrDuplicateGenerator)
}

func TestBuildTree_UnknownGenerator(t *testing.T) {
	e := newTestEngine(t, testRegistry(t, nil, nil))

	_, err := e.BuildTree(Descriptor{
		Name:      "demo",
		Generator: "app",
		Config:    map[string]any{"module": "example.com/demo"},
		Children:  []Descriptor{{Name: "x", Generator: "nope"}},
	})
	var unknown *UnknownGeneratorError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "demo/x", unknown.Instance)
	assert.Equal(t, "nope", unknown.Generator)
}

func TestBuildTree_DuplicateTaskNames(t *testing.T) {
	reg := testRegistry(t, map[string]func(InstanceContext) []*Task{
		"leaf": func(InstanceContext) []*Task {
			return []*Task{{Name: "render"}, {Name: "render"}}
		},
	}, nil)
	e := newTestEngine(t, reg)

	_, err := e.BuildTree(Descriptor{Generator: "leaf"})
	var dup *DuplicateTaskError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "leaf", dup.Generator)
	assert.Equal(t, "render", dup.Task)
}

func TestRegistry(t *testing.T) {
	reg := testRegistry(t, nil, nil)
	assert.Equal(t, []string{"app", "leaf", "pkg"}, reg.Names())

	err := reg.Register(&Generator{Name: "app", Instantiate: func(InstanceContext) (Instance, error) { return Instance{}, nil }})
	assert.ErrorContains(t, err, "already registered")
	assert.Error(t, reg.Register(&Generator{Name: "bare"}))

	_, ok := reg.Get("missing")
	assert.False(t, ok)
}

func TestMergeConfig(t *testing.T) {
	got := mergeConfig(
		map[string]any{"a": 1, "nested": map[string]any{"x": 1, "y": 2}},
		map[string]any{"b": 2, "nested": map[string]any{"y": 3}},
	)
	assert.Equal(t, map[string]any{"a": 1, "b": 2, "nested": map[string]any{"x": 1, "y": 3}}, got)
	assert.Nil(t, mergeConfig(nil, nil))
}
