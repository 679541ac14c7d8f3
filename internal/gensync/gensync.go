// Package gensync runs one synchronization of a project: it builds the
// generator tree from the project definition, executes it, reconciles the
// generated files with the working directory, records the new snapshot and
// runs post-write commands.
//
// Writes and the snapshot are applied together. If the snapshot cannot be
// committed the file writes are rolled back, so the snapshot always
// describes what is on disk.
package gensync

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/simonhull/baseplate/internal/config"
	"github.com/simonhull/baseplate/internal/engine"
	"github.com/simonhull/baseplate/internal/exec"
	"github.com/simonhull/baseplate/internal/generators"
	"github.com/simonhull/baseplate/internal/logger"
	"github.com/simonhull/baseplate/internal/project"
	"github.com/simonhull/baseplate/internal/reconcile"
	"github.com/simonhull/baseplate/internal/render"
	"github.com/simonhull/baseplate/internal/templates"
)

// Options configures a synchronization run.
type Options struct {
	// Config is the loaded tool configuration. Its Dir is the project
	// directory.
	Config *config.Config
	// Strategy overrides Config.Conflicts when set.
	Strategy string
	// DryRun computes the plan and its diffs without touching the disk.
	DryRun bool
	// SkipCommands suppresses post-write commands.
	SkipCommands bool
	// Generators defaults to the bundled set.
	Generators []*engine.Generator
	Logger     *slog.Logger
	// Executor runs formatters and post-write commands.
	Executor *exec.Executor
	// Stream receives post-write command output as it is produced.
	Stream  io.Writer
	Spinner bool
}

// Result describes a run. It is returned even when the run fails after
// planning, so callers can print a full summary.
type Result struct {
	RunID       string
	Engine      *engine.Result
	Plan        *reconcile.Plan
	Diffs       []*reconcile.FileDiff
	Commands    *exec.Report
	Diagnostics []engine.Diagnostic
	DryRun      bool
}

func (o *Options) defaults() error {
	if o.Config == nil {
		return errors.New("gensync: no configuration")
	}
	if o.Logger == nil {
		o.Logger = logger.Discard()
	}
	if o.Generators == nil {
		o.Generators = generators.All()
	}
	if o.Executor == nil {
		o.Executor = exec.NewExecutor(&exec.Options{Stdout: io.Discard, Stderr: io.Discard})
	}
	return nil
}

// NewEngine builds an engine with gens registered and the bundled
// templates mounted.
func NewEngine(gens []*engine.Generator, workers int, log *slog.Logger) (*engine.Engine, error) {
	reg := engine.NewRegistry()
	if err := reg.Register(gens...); err != nil {
		return nil, err
	}
	r := render.New()
	if err := generators.Mount(r); err != nil {
		return nil, err
	}
	return engine.New(reg, engine.Options{Logger: log, Workers: workers, Renderer: r})
}

// LoadDefinition reads the project definition named by cfg and fills the
// root module settings from an existing go.mod.
func LoadDefinition(cfg *config.Config) (*project.Definition, error) {
	def, err := project.Load(cfg.ProjectPath())
	if err != nil {
		return nil, err
	}
	if def.Root.Generator == "project" {
		info, err := project.DetectModule(cfg.Dir)
		if err != nil {
			return nil, err
		}
		project.ApplyModuleDefaults(def, info)
	}
	return def, nil
}

// Generate runs one synchronization.
func Generate(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	cfg := opts.Config
	log, runID := logger.WithRun(opts.Logger)
	res := &Result{RunID: runID, DryRun: opts.DryRun}

	def, err := LoadDefinition(cfg)
	if err != nil {
		return res, err
	}
	eng, err := NewEngine(opts.Generators, cfg.Workers, log)
	if err != nil {
		return res, err
	}
	tree, err := eng.BuildTree(def.Root)
	if err != nil {
		return res, err
	}
	log.Debug("generator tree built", "generators", len(tree.Nodes), "tasks", len(tree.Tasks()))

	out, err := eng.Execute(ctx, tree)
	res.Engine = out
	if err != nil {
		return res, err
	}
	res.Diagnostics = out.Diagnostics

	files, err := outputFiles(cfg, out)
	if err != nil {
		return res, err
	}

	snap, err := reconcile.LoadSnapshot(cfg.SnapshotPath())
	if err != nil {
		return res, err
	}
	strategy, err := reconcile.NewStrategy(cmp.Or(opts.Strategy, cfg.Conflicts))
	if err != nil {
		return res, err
	}

	plan, err := reconcile.Reconcile(ctx, files, reconcile.Options{
		Root:       cfg.Dir,
		Snapshot:   snap,
		Formatters: Formatters(cfg, opts.Executor),
		Strategy:   strategy,
		Workers:    cfg.Workers,
		Logger:     log,
	})
	if err != nil {
		return res, err
	}
	res.Plan = plan
	log.Info("plan ready",
		"create", plan.Count(reconcile.ActionCreate),
		"update", plan.Count(reconcile.ActionUpdate),
		"merge", plan.Count(reconcile.ActionMerge),
		"conflict", plan.Count(reconcile.ActionConflict),
		"remove", plan.Count(reconcile.ActionRemove))

	if opts.DryRun {
		res.Diffs, err = plan.Diffs()
		return res, err
	}

	tx := plan.Transaction(cfg.Dir)
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("write files: %w", err)
	}
	if err := plan.Snapshot.Commit(cfg.SnapshotPath()); err != nil {
		tx.Rollback()
		return res, fmt.Errorf("commit snapshot: %w", err)
	}

	if !opts.SkipCommands && !cfg.Commands.Skip {
		res.Commands = runCommands(ctx, opts, log, out.Commands, plan.Changed())
	}

	var cmdErr error
	if res.Commands != nil {
		cmdErr = res.Commands.Err()
	}
	return res, errors.Join(plan.Err(), cmdErr)
}

// outputFiles converts engine output into reconciler input, adding
// provenance sidecars when enabled.
func outputFiles(cfg *config.Config, out *engine.Result) ([]reconcile.File, error) {
	snapshotDir := filepath.ToSlash(filepath.Clean(cfg.SnapshotDir))

	files := make([]reconcile.File, 0, len(out.Files))
	for _, f := range out.Files {
		if f.Path == snapshotDir || strings.HasPrefix(f.Path, snapshotDir+"/") {
			return nil, fmt.Errorf("%s writes %s inside the snapshot directory", f.Task, f.Path)
		}
		files = append(files, reconcile.File{
			Path:                 f.Path,
			Contents:             f.Contents,
			SkipFormatting:       f.SkipFormatting,
			ShouldNeverOverwrite: f.ShouldNeverOverwrite,
		})
	}

	if !cfg.TemplateMetadata.Enabled {
		return files, nil
	}
	sidecars, err := templates.BuildSidecars(out.Templates())
	if err != nil {
		return nil, err
	}
	for p, data := range sidecars {
		files = append(files, reconcile.File{Path: p, Contents: data, SkipFormatting: true})
	}
	return files, nil
}

// Formatters builds the formatting pipeline configured in cfg.
func Formatters(cfg *config.Config, executor *exec.Executor) *reconcile.Pipeline {
	var list []reconcile.Formatter
	if cfg.Formatters.Go.Enabled {
		list = append(list, reconcile.GoFormatter{FixImports: cfg.Formatters.Go.FixImports})
	}
	for _, ext := range cfg.Formatters.External {
		list = append(list, &reconcile.CommandFormatter{
			Label:    ext.Name,
			Patterns: ext.Patterns,
			Args:     ext.Command,
			Executor: executor.WithDir(cfg.Dir),
		})
	}
	return reconcile.NewPipeline(list...)
}

func runCommands(ctx context.Context, opts Options, log *slog.Logger, cmds []exec.Command, changed []string) *exec.Report {
	for i := range cmds {
		if cmds[i].Timeout == 0 {
			cmds[i].Timeout = opts.Config.Commands.Timeout
		}
	}
	runner := exec.NewRunner(opts.Executor, exec.RunnerOptions{
		Root:    opts.Config.Dir,
		Logger:  log,
		Stream:  opts.Stream,
		Spinner: opts.Spinner,
	})
	return runner.Run(ctx, cmds, changed)
}
