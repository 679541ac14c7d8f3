package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/simonhull/baseplate/internal/gensync"
	"github.com/simonhull/baseplate/internal/output"
	"github.com/simonhull/baseplate/internal/reconcile"
	"github.com/simonhull/baseplate/internal/textdiff"
)

// SnapshotCmd creates and returns the 'snapshot' command
func SnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect or update the record of the last generation",
		Long: `The snapshot records what baseplate generated last time and how you
changed it since. Three-way merges use it as their common base.`,
	}
	cmd.AddCommand(snapshotSaveCmd(), snapshotShowCmd())
	return cmd
}

func snapshotSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save [directory]",
		Short: "Record the current working copy as your version of every generated file",
		Long: `Record the current working copy as your version of every generated file
without generating. Use it after resolving conflicts by hand or after
deleting generated files you do not want back.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args)
			if err != nil {
				return err
			}
			m, err := gensync.SaveSnapshot(cfg)
			if err != nil {
				return err
			}
			output.Success(fmt.Sprintf("Snapshot saved: %d unmodified, %d modified, %d deleted",
				len(m.Files.Added), len(m.Files.Modified), len(m.Files.Deleted)))
			return nil
		},
	}
}

func snapshotShowCmd() *cobra.Command {
	var showDiffs bool

	cmd := &cobra.Command{
		Use:   "show [directory]",
		Short: "List the files recorded in the snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args)
			if err != nil {
				return err
			}
			snap, err := reconcile.LoadSnapshot(cfg.SnapshotPath())
			if err != nil {
				return err
			}
			if !snap.Exists() {
				output.Info("No snapshot yet; run baseplate generate first")
				return nil
			}

			files := snap.Manifest.Files
			output.Info(fmt.Sprintf("%d generated file(s) tracked in %s", len(snap.Paths())+len(files.Deleted), cfg.SnapshotDir))
			for _, p := range files.Added {
				output.Action("generated", p)
			}
			for _, mf := range files.Modified {
				output.Action("modified", mf.Path)
				if !showDiffs {
					continue
				}
				fd, err := snap.Diff(mf.Path)
				if err != nil {
					output.Warn(err.Error())
					continue
				}
				added, removed := textdiff.Stat(fd)
				output.Step(fmt.Sprintf("+%d -%d", added, removed))
				output.Raw(textdiff.Render(fd, textdiff.RenderOptions{Color: reconcile.IsTerminal()}))
			}
			for _, p := range files.Deleted {
				output.Action("deleted by user", p)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showDiffs, "diff", "d", false, "Print the recorded diff of every modified file")
	return cmd
}
