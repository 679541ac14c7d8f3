package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/simonhull/baseplate/internal/exec"
	"github.com/simonhull/baseplate/internal/gensync"
	"github.com/simonhull/baseplate/internal/output"
	"github.com/simonhull/baseplate/internal/reconcile"
)

// GenerateCmd creates and returns the 'generate' command
func GenerateCmd() *cobra.Command {
	var force, skip, interactive, dryRun, skipCommands, watch bool

	cmd := &cobra.Command{
		Use:   "generate [directory]",
		Short: "Generate the project and reconcile it with your edits",
		Long: `Generate every file described by baseplate.project.yml and reconcile the
result with the working copy.

Conflict handling (default from "conflicts" in baseplate.yml):
  --force        overwrite conflicting files with the generated version
  --skip         keep your version of conflicting files
  --interactive  decide per file (requires a terminal)
  without flags  write conflict markers and exit non-zero

Examples:
  baseplate generate
  baseplate generate ./services/shop --dry-run
  baseplate generate --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args)
			if err != nil {
				return err
			}
			strategy, err := reconcile.StrategyFromFlags(force, skip, interactive, cfg.Conflicts)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}

			opts := gensync.Options{
				Config:       cfg,
				Strategy:     strategy,
				DryRun:       dryRun,
				SkipCommands: skipCommands,
				Logger:       log,
				Executor:     exec.NewExecutor(nil),
				Spinner:      !output.IsVerbose() && reconcile.IsTerminal(),
			}
			if output.IsVerbose() {
				opts.Stream = output.Writer()
			}

			if watch {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				output.Info("Watching " + cfg.ProjectFile + " for changes (Ctrl+C to stop)")
				return gensync.Watch(ctx, opts, printResult)
			}

			res, err := gensync.Generate(cmd.Context(), opts)
			printResult(res, err)
			return reported(err)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite conflicting files with the generated version")
	cmd.Flags().BoolVar(&skip, "skip", false, "Keep your version of conflicting files")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Resolve each conflict interactively")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would change without writing anything")
	cmd.Flags().BoolVar(&skipCommands, "skip-commands", false, "Do not run post-write commands")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Regenerate whenever the project definition changes")
	cmd.MarkFlagsMutuallyExclusive("force", "skip", "interactive")
	cmd.MarkFlagsMutuallyExclusive("dry-run", "watch")

	return cmd
}
