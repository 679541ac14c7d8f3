// Package engine expands generator descriptors into a tree of tasks and
// runs them.
//
// A run has three steps:
//
//  1. BuildTree validates each descriptor against its generator's config
//     schema and expands default children into an arena of GeneratorEntry
//     nodes.
//  2. Execute sorts the task phases found in the tree, checks every provider
//     dependency against the declared exports, and runs phases in order.
//  3. Each task's build step writes files, post-write commands and outputs
//     into a private Builder. Builders are merged in task order once a phase
//     completes, so the resulting file set does not depend on goroutine
//     scheduling.
//
// Nothing touches the disk here. The Result is handed to the reconciler.
package engine

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/simonhull/baseplate/internal/render"
	"github.com/simonhull/baseplate/internal/schema"
)

const defaultWorkers = 8

// Options configures an Engine.
type Options struct {
	Logger   *slog.Logger
	Workers  int
	Renderer *render.Renderer
}

// Engine builds generator trees and executes them. One engine is created by
// the entry point and shared by every run it performs.
type Engine struct {
	registry  *Registry
	validator *schema.Validator
	renderer  *render.Renderer
	logger    *slog.Logger
	workers   int
}

// New creates an engine over the generators in reg. Generator schema
// contributions are collected first, then frozen into one validator.
func New(reg *Registry, opts Options) (*Engine, error) {
	sr := schema.NewRegistry()
	if err := schema.RegisterBuiltins(sr); err != nil {
		return nil, err
	}
	for _, g := range reg.List() {
		if g.Schema == nil {
			continue
		}
		if err := g.Schema(sr); err != nil {
			return nil, fmt.Errorf("register schema for generator %q: %w", g.Name, err)
		}
	}
	v, err := sr.Build()
	if err != nil {
		return nil, fmt.Errorf("build validator: %w", err)
	}

	e := &Engine{
		registry:  reg,
		validator: v,
		renderer:  opts.Renderer,
		logger:    opts.Logger,
		workers:   opts.Workers,
	}
	if e.renderer == nil {
		e.renderer = render.New()
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.workers <= 0 {
		e.workers = defaultWorkers
	}
	return e, nil
}

// Registry returns the generators the engine knows.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Renderer returns the template renderer builders use.
func (e *Engine) Renderer() *render.Renderer {
	return e.renderer
}
