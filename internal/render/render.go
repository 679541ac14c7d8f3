// Package render executes text/template sources for generators.
package render

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"text/template"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 256

// Renderer parses and executes templates, caching parsed templates by source.
// It is safe for concurrent use.
type Renderer struct {
	funcMap template.FuncMap
	cache   *lru.Cache[string, *template.Template]

	mu     sync.RWMutex
	mounts map[string]fs.FS
}

// New creates a renderer with the built-in helper functions.
func New() *Renderer {
	return NewWithSize(defaultCacheSize)
}

// NewWithSize creates a renderer whose cache holds at most size templates.
func NewWithSize(size int) *Renderer {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, *template.Template](size)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &Renderer{funcMap: FuncMap(), cache: cache, mounts: make(map[string]fs.FS)}
}

// RenderString renders a template from a string.
// The name is used for caching and error messages.
func (r *Renderer) RenderString(name, text string, data any) ([]byte, error) {
	tmpl, err := r.load("string:"+name, name, func() ([]byte, error) {
		return []byte(text), nil
	})
	if err != nil {
		return nil, err
	}
	return execute(tmpl, data)
}

// Mount registers fsys under name so Render can address its templates.
// Mounting a name twice replaces the earlier filesystem.
func (r *Renderer) Mount(name string, fsys fs.FS) {
	r.mu.Lock()
	r.mounts[name] = fsys
	r.mu.Unlock()
	r.cache.Purge()
}

// Render renders the template at path inside the filesystem mounted as name.
func (r *Renderer) Render(name, path string, data any) ([]byte, error) {
	r.mu.RLock()
	fsys, ok := r.mounts[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no templates mounted as '%s'", name)
	}

	tmpl, err := r.load("fs:"+name+":"+path, path, func() ([]byte, error) {
		return fs.ReadFile(fsys, path)
	})
	if err != nil {
		return nil, err
	}
	return execute(tmpl, data)
}

// Source returns the raw text of a mounted template.
func (r *Renderer) Source(name, path string) ([]byte, error) {
	r.mu.RLock()
	fsys, ok := r.mounts[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no templates mounted as '%s'", name)
	}
	return fs.ReadFile(fsys, path)
}

// RenderFile renders a template from disk. File templates are not cached
// so edits made during watch mode are picked up.
func (r *Renderer) RenderFile(path string, data any) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file '%s': %w", path, err)
	}
	tmpl, err := template.New(path).Funcs(r.funcMap).Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", path, err)
	}
	return execute(tmpl, data)
}

// Purge empties the template cache.
func (r *Renderer) Purge() {
	r.cache.Purge()
}

// Len returns the number of cached templates.
func (r *Renderer) Len() int {
	return r.cache.Len()
}

func (r *Renderer) load(key, name string, read func() ([]byte, error)) (*template.Template, error) {
	if tmpl, ok := r.cache.Get(key); ok {
		return tmpl, nil
	}

	src, err := read()
	if err != nil {
		return nil, fmt.Errorf("failed to read template '%s': %w", name, err)
	}
	tmpl, err := template.New(name).Funcs(r.funcMap).Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", name, err)
	}
	r.cache.Add(key, tmpl)
	return tmpl, nil
}

func execute(tmpl *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render template '%s': %w", tmpl.Name(), err)
	}
	return buf.Bytes(), nil
}
