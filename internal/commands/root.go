// Package commands implements the baseplate CLI.
package commands

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/simonhull/baseplate/internal/config"
	"github.com/simonhull/baseplate/internal/logger"
	"github.com/simonhull/baseplate/internal/output"
)

// Version is set at build time with -ldflags "-X ...commands.Version=v1.2.3".
var Version = "dev"

var global struct {
	verbose  bool
	logLevel string
	logJSON  bool
}

// RootCmd creates and returns the root command for the baseplate CLI
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseplate",
		Short: "Keep generated code in sync with a project definition",
		Long: `Baseplate generates a project from a tree of composable generators and
keeps it in sync as the definition changes.

Every run is reconciled with the working copy:
• Files you never touched are updated in place
• Files you edited are three-way merged with the new output
• Overlapping edits get conflict markers for you to resolve`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			output.SetVerbose(global.verbose)
		},
	}

	cmd.PersistentFlags().BoolVarP(&global.verbose, "verbose", "v", false, "Enable verbose output for debugging")
	cmd.PersistentFlags().StringVar(&global.logLevel, "log-level", "", "Diagnostic log level (debug, info, warn, error, silent); overrides logLevel in baseplate.yml")
	cmd.PersistentFlags().BoolVar(&global.logJSON, "log-json", false, "Write diagnostics as JSON")

	return cmd
}

// Execute runs root and prints any error not already reported. It returns
// the process exit code.
func Execute(root *cobra.Command) int {
	err := root.Execute()
	if err == nil {
		return 0
	}
	var r *reportedError
	if !errors.As(err, &r) {
		output.Error(err.Error())
	}
	return 1
}

// reportedError marks an error whose details were already printed.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return &reportedError{err: err}
}

// AddCommands registers every subcommand on root.
func AddCommands(root *cobra.Command) {
	root.AddCommand(GenerateCmd())
	root.AddCommand(SnapshotCmd())
	root.AddCommand(DiffCmd())
	root.AddCommand(TemplatesCmd())
	root.AddCommand(GeneratorsCmd())
}

// newLogger builds the diagnostic logger for a command.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	name := global.logLevel
	if name == "" && cfg != nil {
		name = cfg.LogLevel
	}
	level, err := logger.ParseLevel(name)
	if err != nil {
		return nil, err
	}
	if global.verbose {
		level = logger.LevelDebug
	}
	return logger.New(logger.Options{Level: level, Out: os.Stderr, JSON: global.logJSON}), nil
}

// projectDir returns the absolute directory named by args, or the current
// directory.
func projectDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	return filepath.Abs(dir)
}

func loadConfig(args []string) (*config.Config, error) {
	dir, err := projectDir(args)
	if err != nil {
		return nil, err
	}
	return config.Load(dir)
}
