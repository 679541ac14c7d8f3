package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/simonhull/baseplate/internal/gensync"
	"github.com/simonhull/baseplate/internal/output"
	"github.com/simonhull/baseplate/internal/reconcile"
)

// DiffCmd creates and returns the 'diff' command
func DiffCmd() *cobra.Command {
	var stat bool

	cmd := &cobra.Command{
		Use:   "diff [directory]",
		Short: "Show how the working copy differs from the last generated output",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args)
			if err != nil {
				return err
			}
			drift, err := gensync.Drift(cfg)
			if err != nil {
				return err
			}
			if len(drift) == 0 {
				output.Success("No changes since the last generate")
				return nil
			}

			for _, d := range drift {
				if stat {
					printStat(d)
					continue
				}
				printFileDiff(d)
			}
			output.Info(fmt.Sprintf("%d generated file(s) changed", len(drift)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&stat, "stat", false, "Only list changed files with line counts")
	return cmd
}

func printStat(d *reconcile.FileDiff) {
	output.Step(d.Summary())
}
