package generators

import (
	"context"
	"slices"

	"github.com/simonhull/baseplate/internal/engine"
	"github.com/simonhull/baseplate/internal/exec"
	"github.com/simonhull/baseplate/internal/provider"
	"github.com/simonhull/baseplate/internal/templates"
)

// ModuleConfig configures the go-module generator.
type ModuleConfig struct {
	// Tidy runs go mod tidy after go.mod or any Go file changed.
	Tidy bool `mapstructure:"tidy"`
}

// GoModule returns the go.mod generator.
func GoModule() *engine.Generator {
	return &engine.Generator{
		Name:        "go-module",
		Description: "go.mod with the requirements of every package",
		NewConfig: func() any {
			return &ModuleConfig{Tidy: true}
		},
		Instantiate: func(ic engine.InstanceContext) (engine.Instance, error) {
			cfg := ic.Config.(*ModuleConfig)
			return engine.Instance{Tasks: []*engine.Task{goModTask(cfg)}}, nil
		},
	}
}

func goModTask(cfg *ModuleConfig) *engine.Task {
	return &engine.Task{
		Name:  "gomod",
		Phase: PhaseFinalize,
		Dependencies: map[string]provider.Dependency{
			"info":     ProjectInfoType.Dependency(),
			"requires": RequirementsType.Dependency(),
		},
		Run: func(ctx context.Context, in engine.TaskInput) (engine.TaskResult, error) {
			info := provider.MustGet[*ProjectInfo](in.Deps, "info")
			requires := provider.MustGet[*provider.ListField[string]](in.Deps, "requires").Values()
			slices.Sort(requires)
			requires = slices.Compact(requires)

			data := struct {
				*ProjectInfo
				Requires []string
			}{info, requires}

			return engine.TaskResult{
				Build: func(ctx context.Context, b *engine.Builder) error {
					if err := b.WriteTemplate(engine.TemplateOptions{
						Template:       "go.mod.tmpl",
						Path:           "go.mod",
						Data:           data,
						Kind:           templates.KindSingleton,
						SkipFormatting: true,
					}); err != nil {
						return err
					}
					if cfg.Tidy {
						b.AddPostWriteCommand(exec.Command{
							Args:          []string{"go", "mod", "tidy"},
							Priority:      exec.PriorityDependencies,
							OnlyIfChanged: []string{"go.mod", "**/*.go"},
						})
					}
					return nil
				},
			}, nil
		},
	}
}
