package commands

import (
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/simonhull/baseplate/internal/generators"
	"github.com/simonhull/baseplate/internal/output"
)

// GeneratorsCmd creates and returns the 'generators' command
func GeneratorsCmd() *cobra.Command {
	var showTemplates bool

	cmd := &cobra.Command{
		Use:   "generators",
		Short: "List the available generators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tfs := generators.TemplateFS()
			for _, g := range generators.All() {
				name := g.Name
				if g.IsPackage {
					name += " (package)"
				}
				output.Info(fmt.Sprintf("%-22s %s", name, g.Description))
				if !showTemplates {
					continue
				}
				err := fs.WalkDir(tfs, g.Name, func(p string, d fs.DirEntry, err error) error {
					if err != nil || d.IsDir() {
						return err
					}
					output.Step(p)
					return nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showTemplates, "templates", "t", false, "Also list each generator's templates")
	return cmd
}
