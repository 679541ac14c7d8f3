package generators

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/module"

	"github.com/simonhull/baseplate/internal/engine"
	"github.com/simonhull/baseplate/internal/exec"
	"github.com/simonhull/baseplate/internal/provider"
	"github.com/simonhull/baseplate/internal/render"
	"github.com/simonhull/baseplate/internal/schema"
)

// PackageConfig configures the go-package generator.
type PackageConfig struct {
	Path        string   `mapstructure:"path" validate:"required,relpath"`
	Name        string   `mapstructure:"name" validate:"omitempty,goident"`
	Description string   `mapstructure:"description"`
	Requires    []string `mapstructure:"requires" validate:"dive,gorequire"`
	Tests       bool     `mapstructure:"tests"`
	Generate    bool     `mapstructure:"generate"`
}

// GoPackage returns the Go package generator.
func GoPackage() *engine.Generator {
	return &engine.Generator{
		Name:        "go-package",
		Description: "Go package with doc.go, an editable stub and a stub test",
		IsPackage:   true,
		NewConfig: func() any {
			return &PackageConfig{Tests: true}
		},
		Schema:      registerPackageSchema,
		Instantiate: instantiatePackage,
	}
}

// registerPackageSchema adds the gorequire tag, which accepts go.mod
// requirement lines such as "github.com/spf13/cobra v1.10.1".
func registerPackageSchema(r *schema.Registry) error {
	return r.RegisterTag(schema.Tag{
		Name: "gorequire",
		Func: func(fl validator.FieldLevel) bool {
			_, _, err := splitRequire(fl.Field().String())
			return err == nil
		},
		Message:    "must be a module path followed by a version",
		Suggestion: `use a requirement like "github.com/spf13/cobra v1.10.1"`,
	})
}

func splitRequire(s string) (string, string, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return "", "", fmt.Errorf("requirement %q: want \"<path> <version>\"", s)
	}
	if err := module.Check(fields[0], fields[1]); err != nil {
		return "", "", err
	}
	return fields[0], fields[1], nil
}

func instantiatePackage(ic engine.InstanceContext) (engine.Instance, error) {
	cfg := ic.Config.(*PackageConfig)
	name := cfg.Name
	if name == "" {
		name = render.GoPackage(cfg.Path)
	}
	dir := path.Clean(cfg.Path)

	register := &engine.Task{
		Name: "register",
		Dependencies: map[string]provider.Dependency{
			"info":     ProjectInfoType.Dependency(),
			"packages": PackagesType.Dependency(),
			"requires": RequirementsType.Dependency(),
		},
		Exports: map[string]provider.Export{
			"package": PackageType.Export(provider.ScopePackage),
		},
		Run: func(ctx context.Context, in engine.TaskInput) (engine.TaskResult, error) {
			info := provider.MustGet[*ProjectInfo](in.Deps, "info")
			pkg := &PackageInfo{
				Name:        name,
				Path:        dir,
				ImportPath:  path.Join(info.Module, dir),
				Description: strings.TrimSpace(cfg.Description),
			}
			if err := provider.MustGet[*provider.ListField[PackageInfo]](in.Deps, "packages").Append(*pkg); err != nil {
				return engine.TaskResult{}, err
			}
			if err := provider.MustGet[*provider.ListField[string]](in.Deps, "requires").Append(cfg.Requires...); err != nil {
				return engine.TaskResult{}, err
			}
			return engine.TaskResult{Providers: provider.Values{"package": pkg}}, nil
		},
	}

	files := &engine.Task{
		Name:  "files",
		Phase: PhaseScaffold,
		Dependencies: map[string]provider.Dependency{
			"package": PackageType.Dependency(),
		},
		Outputs: map[string]provider.Export{
			"api": PackageAPIType.Export(provider.ScopePackage),
		},
		Run: func(ctx context.Context, in engine.TaskInput) (engine.TaskResult, error) {
			pkg := provider.MustGet[*PackageInfo](in.Deps, "package")
			typeName := render.PascalCase(pkg.Name)
			api := &PackageAPI{
				TypeName:    typeName,
				Constructor: "New" + typeName,
				File:        path.Join(pkg.Path, pkg.Name+".go"),
			}
			data := struct {
				*PackageInfo
				API *PackageAPI
			}{pkg, api}

			return engine.TaskResult{
				Build: func(ctx context.Context, b *engine.Builder) error {
					if err := b.WriteTemplate(engine.TemplateOptions{
						Template:  "doc.go.tmpl",
						Path:      path.Join(pkg.Path, "doc.go"),
						Data:      data,
						Variables: map[string]string{"package": pkg.Name},
					}); err != nil {
						return err
					}
					if err := b.WriteTemplate(engine.TemplateOptions{
						Template:             "stub.go.tmpl",
						Path:                 api.File,
						Data:                 data,
						Variables:            map[string]string{"package": pkg.Name},
						ShouldNeverOverwrite: true,
					}); err != nil {
						return err
					}
					if cfg.Generate {
						b.AddPostWriteCommand(exec.Command{
							Args:          []string{"go", "generate", "./" + pkg.Path + "/..."},
							Priority:      exec.PriorityCodegen,
							OnlyIfChanged: []string{pkg.Path + "/**/*.go"},
						})
					}
					return b.SetOutput("api", api)
				},
			}, nil
		},
	}

	tasks := []*engine.Task{register, files}
	if cfg.Tests {
		tasks = append(tasks, &engine.Task{
			Name:  "tests",
			Phase: PhaseFinalize,
			Dependencies: map[string]provider.Dependency{
				"package": PackageType.Dependency(),
				"api":     PackageAPIType.Dependency(),
			},
			Run: func(ctx context.Context, in engine.TaskInput) (engine.TaskResult, error) {
				data := struct {
					Package *PackageInfo
					API     *PackageAPI
				}{
					provider.MustGet[*PackageInfo](in.Deps, "package"),
					provider.MustGet[*PackageAPI](in.Deps, "api"),
				}
				return engine.TaskResult{
					Build: func(ctx context.Context, b *engine.Builder) error {
						return b.WriteTemplate(engine.TemplateOptions{
							Template:  "stub_test.go.tmpl",
							Path:      path.Join(data.Package.Path, data.Package.Name+"_test.go"),
							Data:      data,
							Variables: map[string]string{"package": data.Package.Name},
						})
					},
				}, nil
			},
		})
	}
	return engine.Instance{Tasks: tasks}, nil
}
