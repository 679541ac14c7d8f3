package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/simonhull/baseplate/internal/output"
	"github.com/simonhull/baseplate/internal/templates"
)

// TemplatesCmd creates and returns the 'templates' command
func TemplatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Find and extract the templates behind generated files",
		Long: `Generated files carry provenance when templateMetadata.enabled is set in
baseplate.yml. These commands read it back to find which file each template
produced and to copy edited files back into a generator as templates.`,
	}
	cmd.AddCommand(templatesDiscoverCmd(), templatesExtractCmd())
	return cmd
}

// discoveredTemplate is the yaml shape of one discovered source.
type discoveredTemplate struct {
	Generator string            `yaml:"generator"`
	Template  string            `yaml:"template"`
	Kind      string            `yaml:"kind"`
	File      string            `yaml:"file"`
	Variables map[string]string `yaml:"variables,omitempty"`
}

func templatesDiscoverCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "discover [directory]",
		Short: "List the file each template was last rendered to",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := projectDir(args)
			if err != nil {
				return err
			}
			tracker, err := templates.Discover(dir)
			if err != nil {
				return err
			}

			sources := tracker.Sources()
			switch format {
			case "yaml":
				list := make([]discoveredTemplate, 0, len(sources))
				for _, src := range sources {
					list = append(list, discoveredTemplate{
						Generator: src.Metadata.Generator,
						Template:  src.Metadata.Template,
						Kind:      string(src.Metadata.Kind),
						File:      src.Path,
						Variables: src.Metadata.Variables,
					})
				}
				data, err := yaml.Marshal(list)
				if err != nil {
					return err
				}
				output.Raw(string(data))
			case "text":
				if len(sources) == 0 {
					output.Info("No template provenance found; enable templateMetadata in baseplate.yml and generate")
					return nil
				}
				current := ""
				for _, src := range sources {
					if src.Metadata.Generator != current {
						current = src.Metadata.Generator
						output.Info(current)
					}
					output.Step(fmt.Sprintf("%-24s %-10s %s", src.Metadata.Template, src.Metadata.Kind, src.Path))
				}
			default:
				return fmt.Errorf("unknown format %q (expected text or yaml)", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or yaml")
	return cmd
}

func templatesExtractCmd() *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "extract <generator> [directory]",
		Short: "Copy a generator's rendered files back as templates",
		Long: `Copy the files last rendered from each of a generator's templates into
<to>/templates and record them in <to>/extractor.json. Existing entries in
extractor.json keep any settings baseplate does not know about.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			generator := args[0]
			dir, err := projectDir(args[1:])
			if err != nil {
				return err
			}
			tracker, err := templates.Discover(dir)
			if err != nil {
				return err
			}
			if len(tracker.ByGenerator(generator)) == 0 {
				return fmt.Errorf("no templates of generator %q found under %s", generator, dir)
			}

			dest := to
			if dest == "" {
				dest = filepath.Join(dir, "generators", generator)
			}
			res, err := templates.Extract(dir, dest, generator, tracker)
			if err != nil {
				return err
			}
			for _, name := range res.Templates {
				output.Action("create", filepath.Join(dest, "templates", name))
			}
			output.Success(fmt.Sprintf("Extracted %d template(s) of %s into %s", len(res.Templates), generator, dest))
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Generator directory to extract into (default: generators/<generator>)")
	return cmd
}
