// Package generators holds the generators bundled with baseplate.
//
// The bundled set scaffolds a Go project:
//
//   - project: the root. Exports project information and the shared
//     requirement and package lists, writes README.md and .gitignore, and
//     asks for a go-module child by default.
//   - go-module: writes go.mod from everything the packages require and
//     runs go mod tidy when it changed.
//   - go-package: a package boundary that writes doc.go, a user-owned stub
//     and, in the finalize phase, a test for the stub's constructor.
//
// Generators register into an engine.Registry with Register; their
// templates are mounted into a render.Renderer with Mount.
package generators

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/simonhull/baseplate/internal/engine"
	"github.com/simonhull/baseplate/internal/provider"
	"github.com/simonhull/baseplate/internal/render"
)

//go:embed templates
var templateFS embed.FS

// Phases used by the bundled generators. Tasks without a phase run in the
// default phase, before both.
var (
	PhaseScaffold = &engine.TaskPhase{Name: "scaffold"}
	PhaseFinalize = &engine.TaskPhase{
		Name:               "finalize",
		ConsumesOutputFrom: []*engine.TaskPhase{PhaseScaffold},
	}
)

// ProjectInfo describes the project being generated.
type ProjectInfo struct {
	Name        string
	Module      string
	GoVersion   string
	Description string
}

// PackageInfo describes one generated Go package.
type PackageInfo struct {
	Name        string
	Path        string
	ImportPath  string
	Description string
}

// PackageAPI is what a package stub declares.
type PackageAPI struct {
	TypeName    string
	Constructor string
	File        string
}

// Provider types exchanged between the bundled generators.
var (
	ProjectInfoType  = provider.NewType[*ProjectInfo]("baseplate.project-info")
	RequirementsType = provider.NewType[*provider.ListField[string]]("baseplate.go-requirements")
	PackagesType     = provider.NewType[*provider.ListField[PackageInfo]]("baseplate.go-packages")
	PackageType      = provider.NewType[*PackageInfo]("baseplate.go-package")
	PackageAPIType   = provider.NewType[*PackageAPI]("baseplate.go-package-api")
)

// All returns fresh copies of the bundled generators.
func All() []*engine.Generator {
	return []*engine.Generator{
		Project(),
		GoModule(),
		GoPackage(),
	}
}

// Register adds the bundled generators to reg.
func Register(reg *engine.Registry) error {
	return reg.Register(All()...)
}

// Mount makes each generator's templates available under its name.
func Mount(r *render.Renderer) error {
	for _, g := range All() {
		sub, err := fs.Sub(templateFS, "templates/"+g.Name)
		if err != nil {
			return fmt.Errorf("mount templates for %s: %w", g.Name, err)
		}
		r.Mount(g.Name, sub)
	}
	return nil
}

// TemplateFS returns the embedded template tree, one directory per
// generator.
func TemplateFS() fs.FS {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}
