package generators

import (
	"context"
	"slices"
	"strings"

	"github.com/simonhull/baseplate/internal/engine"
	"github.com/simonhull/baseplate/internal/provider"
	"github.com/simonhull/baseplate/internal/templates"
)

// ProjectConfig configures the project generator.
type ProjectConfig struct {
	Module      string `mapstructure:"module" validate:"required,gomodpath"`
	GoVersion   string `mapstructure:"goVersion" validate:"required,goversion"`
	Description string `mapstructure:"description"`
}

// Project returns the root project generator.
func Project() *engine.Generator {
	return &engine.Generator{
		Name:        "project",
		Description: "Go project root: README, .gitignore and a go-module child",
		IsPackage:   true,
		NewConfig: func() any {
			return &ProjectConfig{GoVersion: "1.25"}
		},
		Instantiate: instantiateProject,
	}
}

func instantiateProject(ic engine.InstanceContext) (engine.Instance, error) {
	cfg := ic.Config.(*ProjectConfig)
	info := &ProjectInfo{
		Name:        ic.Name,
		Module:      cfg.Module,
		GoVersion:   cfg.GoVersion,
		Description: strings.TrimSpace(cfg.Description),
	}

	infoTask := &engine.Task{
		Name: "info",
		Exports: map[string]provider.Export{
			"info":     ProjectInfoType.Export(provider.ScopeProject),
			"requires": RequirementsType.Export(provider.ScopeProject),
			"packages": PackagesType.Export(provider.ScopeProject),
		},
		Run: func(ctx context.Context, in engine.TaskInput) (engine.TaskResult, error) {
			return engine.TaskResult{
				Providers: provider.Values{
					"info":     info,
					"requires": provider.NewListField[string]("go requirements"),
					"packages": provider.NewListField[PackageInfo]("go packages"),
				},
				Build: func(ctx context.Context, b *engine.Builder) error {
					if err := b.WriteTemplate(engine.TemplateOptions{
						Template:             "README.md.tmpl",
						Path:                 "README.md",
						Data:                 info,
						Kind:                 templates.KindSingleton,
						Variables:            map[string]string{"name": info.Name},
						ShouldNeverOverwrite: true,
					}); err != nil {
						return err
					}
					return b.WriteTemplate(engine.TemplateOptions{
						Template: "gitignore.tmpl",
						Path:     ".gitignore",
						Data:     info,
						Kind:     templates.KindSingleton,
					})
				},
			}, nil
		},
	}

	indexTask := &engine.Task{
		Name:  "index",
		Phase: PhaseFinalize,
		Dependencies: map[string]provider.Dependency{
			"packages": PackagesType.Dependency(),
		},
		Run: func(ctx context.Context, in engine.TaskInput) (engine.TaskResult, error) {
			pkgs := provider.MustGet[*provider.ListField[PackageInfo]](in.Deps, "packages").Values()
			slices.SortFunc(pkgs, func(a, b PackageInfo) int {
				return strings.Compare(a.ImportPath, b.ImportPath)
			})
			data := struct {
				Project  *ProjectInfo
				Packages []PackageInfo
			}{info, pkgs}

			return engine.TaskResult{
				Build: func(ctx context.Context, b *engine.Builder) error {
					return b.WriteTemplate(engine.TemplateOptions{
						Template: "PACKAGES.md.tmpl",
						Path:     "PACKAGES.md",
						Data:     data,
						Kind:     templates.KindSingleton,
					})
				},
			}, nil
		},
	}

	return engine.Instance{
		Tasks:    []*engine.Task{infoTask, indexTask},
		Children: []engine.Descriptor{{Name: "go-module", Generator: "go-module"}},
	}, nil
}
