package gensync

import (
	"context"
	"path/filepath"

	"github.com/simonhull/baseplate/internal/config"
	"github.com/simonhull/baseplate/internal/watch"
)

// RunFunc receives the outcome of every run in watch mode.
type RunFunc func(res *Result, err error)

// Watch runs Generate once, then again whenever the project definition,
// the tool configuration or the .env file changes, until ctx is
// cancelled. The configuration is reloaded before every rerun.
func Watch(ctx context.Context, opts Options, onRun RunFunc) error {
	if err := opts.defaults(); err != nil {
		return err
	}

	res, err := Generate(ctx, opts)
	onRun(res, err)

	cfg := opts.Config
	files := []string{
		cfg.ProjectPath(),
		filepath.Join(cfg.Dir, ".env"),
		filepath.Join(cfg.Dir, config.FileName+".yml"),
		filepath.Join(cfg.Dir, config.FileName+".yaml"),
	}
	w, err := watch.New(watch.Options{Files: files, Logger: opts.Logger})
	if err != nil {
		return err
	}
	defer w.Close()

	return w.Run(ctx, func(ctx context.Context, changed []string) {
		opts.Logger.Info("rerunning after change", "files", changed)
		reloaded, err := config.Load(cfg.Dir)
		if err != nil {
			onRun(nil, err)
			return
		}
		next := opts
		next.Config = reloaded
		onRun(Generate(ctx, next))
	})
}
