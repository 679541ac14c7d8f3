package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/simonhull/baseplate/internal/exec"
	"github.com/simonhull/baseplate/internal/orderedset"
	"github.com/simonhull/baseplate/internal/provider"
	"github.com/simonhull/baseplate/internal/templates"
)

// Result is everything a run produced, in deterministic order.
type Result struct {
	Files       []*OutputFile
	Commands    []exec.Command
	Diagnostics []Diagnostic

	// Phases lists the phases that had tasks, in execution order.
	Phases []string
	// Trace lists task IDs in the order their run stage executed.
	Trace []string

	Providers *provider.Registry
}

// Templates returns provenance for every templated file.
func (r *Result) Templates() []templates.Output {
	var out []templates.Output
	for _, f := range r.Files {
		if f.Template != nil {
			out = append(out, templates.Output{Path: f.Path, Metadata: *f.Template})
		}
	}
	return out
}

type taskPlan struct {
	entry *TaskEntry
	phase int

	// bindings maps local dependency names to registrations; optional
	// dependencies with no provider are absent.
	bindings  map[string]*provider.Registration
	exports   map[string]*provider.Registration
	outputs   map[string]*provider.Registration
	producers []*taskPlan
}

type plan struct {
	phases   []*TaskPhase
	byPhase  [][]*taskPlan
	registry *provider.Registry
}

// Plan checks a tree without running it: phases are sorted, every export
// is declared and every dependency is resolved to its producer. Execute
// calls it first; configuration errors are returned before any task runs.
func (e *Engine) Plan(tree *Tree) error {
	_, err := e.plan(tree)
	return err
}

func (e *Engine) plan(tree *Tree) (*plan, error) {
	tasks := tree.Tasks()
	sorted, err := SortPhases(tasks)
	if err != nil {
		return nil, err
	}
	phases := append([]*TaskPhase{nil}, sorted...)
	index := make(map[*TaskPhase]int, len(phases))
	for i, p := range phases {
		index[p] = i
	}

	reg := provider.NewRegistry(tree)
	producers := make(map[*provider.Registration]*taskPlan)
	isOutput := make(map[*provider.Registration]bool)
	plans := make([]*taskPlan, len(tasks))
	var errs []error

	declare := func(tp *taskPlan, name string, exp provider.Export, output bool) {
		r, err := reg.Declare(exp, provider.Contributor{Task: tp.entry.ID, Node: tp.entry.Node})
		if err != nil {
			errs = append(errs, err)
			return
		}
		producers[r] = tp
		if output {
			isOutput[r] = true
			tp.outputs[name] = r
		} else {
			tp.exports[name] = r
		}
	}

	for i, t := range tasks {
		tp := &taskPlan{
			entry:    t,
			phase:    index[t.Phase],
			bindings: make(map[string]*provider.Registration),
			exports:  make(map[string]*provider.Registration),
			outputs:  make(map[string]*provider.Registration),
		}
		plans[i] = tp
		for _, name := range slices.Sorted(maps.Keys(t.Exports)) {
			declare(tp, name, t.Exports[name], false)
		}
		for _, name := range slices.Sorted(maps.Keys(t.Outputs)) {
			if _, clash := t.Exports[name]; clash {
				errs = append(errs, fmt.Errorf("task %s uses %q as both an export and an output", t.ID, name))
				continue
			}
			declare(tp, name, t.Outputs[name], true)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, tp := range plans {
		t := tp.entry
		for _, name := range slices.Sorted(maps.Keys(t.Dependencies)) {
			dep := t.Dependencies[name]
			r, ok := reg.Resolve(dep.Type, t.Node)
			if !ok {
				if !dep.Optional {
					errs = append(errs, &provider.MissingProviderError{Task: t.ID, Provider: dep.Type})
				}
				continue
			}

			p := producers[r]
			switch {
			case p == tp:
				errs = append(errs, fmt.Errorf("task %s depends on %q, which it exports itself", t.ID, dep.Type))
				continue
			case p.phase > tp.phase || (isOutput[r] && p.phase == tp.phase):
				errs = append(errs, &PhaseOrderError{
					Task:          t.ID,
					Phase:         t.PhaseName(),
					Provider:      dep.Type,
					Producer:      p.entry.ID,
					ProducerPhase: p.entry.PhaseName(),
					Output:        isOutput[r],
				})
				continue
			}
			tp.bindings[name] = r
			if !slices.Contains(tp.producers, p) {
				tp.producers = append(tp.producers, p)
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	byPhase := make([][]*taskPlan, len(phases))
	for _, tp := range plans {
		byPhase[tp.phase] = append(byPhase[tp.phase], tp)
	}
	for i, list := range byPhase {
		ordered, err := orderWithinPhase(list)
		if err != nil {
			return nil, fmt.Errorf("order tasks in phase %s: %w", phases[i], err)
		}
		byPhase[i] = ordered
	}

	return &plan{phases: phases, byPhase: byPhase, registry: reg}, nil
}

// orderWithinPhase keeps tree order but moves producers ahead of the
// consumers that share their phase.
func orderWithinPhase(list []*taskPlan) ([]*taskPlan, error) {
	set := orderedset.New[*taskPlan]()
	for _, tp := range list {
		var after []string
		for _, p := range tp.producers {
			if p.phase == tp.phase {
				after = append(after, p.entry.ID)
			}
		}
		if err := set.Add(tp.entry.ID, tp, orderedset.Constraints{ComesAfter: after}); err != nil {
			return nil, err
		}
	}
	return set.Items()
}

// Execute runs every task of tree. Failures are collected rather than
// returned on first sight: a failed task's dependents are skipped and
// reported, unrelated tasks keep running, and the partial Result is
// returned together with a *TaskErrors.
func (e *Engine) Execute(ctx context.Context, tree *Tree) (*Result, error) {
	pl, err := e.plan(tree)
	if err != nil {
		return nil, err
	}

	r := &run{
		engine: e,
		tree:   tree,
		plan:   pl,
		result: &Result{Providers: pl.registry},
		failed: make(map[*taskPlan]bool),
		owners: make(map[string]string),
		single: make(map[string]string),
	}

	for i, phase := range pl.phases {
		if err := ctx.Err(); err != nil {
			return r.result, fmt.Errorf("stopped before phase %s: %w", phase, err)
		}
		if len(pl.byPhase[i]) == 0 {
			continue
		}
		r.runPhase(ctx, phase, pl.byPhase[i])
	}

	if len(r.failures) > 0 {
		return r.result, &TaskErrors{Errors: r.failures}
	}
	return r.result, nil
}

type run struct {
	engine *Engine
	tree   *Tree
	plan   *plan
	result *Result

	failed   map[*taskPlan]bool
	failures []*TaskError
	owners   map[string]string // path -> task ID
	single   map[string]string // singleton template key -> path
}

type pendingBuild struct {
	plan    *taskPlan
	fn      func(context.Context, *Builder) error
	builder *Builder
	err     error
}

func (r *run) runPhase(ctx context.Context, phase *TaskPhase, tasks []*taskPlan) {
	log := r.engine.logger.With("phase", phase.String())
	log.Debug("running phase", "tasks", len(tasks))
	r.result.Phases = append(r.result.Phases, phase.String())

	var builds []*pendingBuild
	for _, tp := range tasks {
		if dep := r.failedProducer(tp); dep != nil {
			r.fail(tp, "run", fmt.Errorf("%w: %s", ErrDependencyFailed, dep.entry.ID))
			continue
		}
		r.result.Trace = append(r.result.Trace, tp.entry.ID)
		build, err := r.runTask(ctx, tp, log)
		if err != nil {
			r.fail(tp, "run", err)
			continue
		}
		if build != nil {
			builds = append(builds, &pendingBuild{plan: tp, fn: build})
		}
	}

	for _, tp := range tasks {
		for _, reg := range tp.exports {
			if v, ok := reg.Value(); ok {
				if s, ok := v.(provider.Sealer); ok {
					s.Seal()
				}
			}
		}
	}

	var g errgroup.Group
	g.SetLimit(r.engine.workers)
	for _, pb := range builds {
		g.Go(func() error {
			pb.builder = newBuilder(pb.plan.entry, r.tree.Nodes[pb.plan.entry.Node], r.engine.renderer)
			pb.err = runBuild(ctx, pb, log)
			return nil
		})
	}
	_ = g.Wait()

	for _, pb := range builds {
		err := pb.err
		if err == nil {
			err = r.merge(pb)
		}
		if err != nil {
			r.fail(pb.plan, "build", err)
		}
	}
}

func (r *run) failedProducer(tp *taskPlan) *taskPlan {
	for _, p := range tp.producers {
		if r.failed[p] {
			return p
		}
	}
	return nil
}

func (r *run) fail(tp *taskPlan, stage string, err error) {
	r.failed[tp] = true
	r.failures = append(r.failures, &TaskError{
		Task:  tp.entry.ID,
		Phase: tp.entry.PhaseName(),
		Stage: stage,
		Err:   err,
	})
	r.engine.logger.Debug("task failed", "task", tp.entry.ID, "stage", stage, "error", err)
}

func (r *run) runTask(ctx context.Context, tp *taskPlan, log *slog.Logger) (build func(context.Context, *Builder) error, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("task panicked", "task", tp.entry.ID, "panic", p, "stack", string(debug.Stack()))
			build, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()

	deps := make(provider.Values, len(tp.bindings))
	for name, reg := range tp.bindings {
		v, ok := reg.Value()
		if !ok {
			return nil, fmt.Errorf("provider %q from %s has no value", reg.Type, reg.Contributor.Task)
		}
		deps[name] = v
	}

	var out TaskResult
	if tp.entry.Run != nil {
		out, err = tp.entry.Run(ctx, TaskInput{
			Deps:   deps,
			Node:   r.tree.Nodes[tp.entry.Node],
			Logger: log.With("task", tp.entry.ID),
		})
		if err != nil {
			return nil, err
		}
	}

	for name := range out.Providers {
		if _, ok := tp.exports[name]; !ok {
			return nil, fmt.Errorf("returned provider %q that it does not export", name)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(tp.exports)) {
		v, ok := out.Providers[name]
		if !ok {
			return nil, fmt.Errorf("did not provide exported %q", name)
		}
		if err := r.plan.registry.Set(tp.exports[name], v); err != nil {
			return nil, err
		}
	}
	return out.Build, nil
}

func runBuild(ctx context.Context, pb *pendingBuild, log *slog.Logger) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("build step panicked", "task", pb.plan.entry.ID, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return pb.fn(ctx, pb.builder)
}

// merge folds one builder into the result. Every check runs before
// anything is added, so a rejected builder leaves no trace.
func (r *run) merge(pb *pendingBuild) error {
	b := pb.builder
	singles := make(map[string]string)
	for _, f := range b.files {
		if owner, ok := r.owners[f.Path]; ok {
			return &DuplicateWriteError{Path: f.Path, First: owner}
		}
		if f.Template == nil || f.Template.Kind != templates.KindSingleton {
			continue
		}
		key := f.Template.Key()
		prev, ok := r.single[key]
		if !ok {
			prev, ok = singles[key]
		}
		if ok {
			return &templates.DuplicateSingletonError{
				Generator: f.Template.Generator,
				Template:  f.Template.Template,
				Paths:     [2]string{prev, f.Path},
			}
		}
		singles[key] = f.Path
	}

	names := slices.Sorted(maps.Keys(pb.plan.outputs))
	for _, name := range names {
		if _, ok := b.outputs[name]; !ok {
			return fmt.Errorf("build step did not set output %q", name)
		}
	}
	for _, name := range names {
		if err := r.plan.registry.Set(pb.plan.outputs[name], b.outputs[name]); err != nil {
			return err
		}
	}

	maps.Copy(r.single, singles)
	for _, f := range b.files {
		r.owners[f.Path] = f.Task
		r.result.Files = append(r.result.Files, f)
	}
	r.result.Commands = append(r.result.Commands, b.commands...)
	r.result.Diagnostics = append(r.result.Diagnostics, b.diagnostics...)
	return nil
}
