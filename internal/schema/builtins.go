package schema

import (
	"go/token"
	"path/filepath"
	"regexp"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/module"
)

var goVersionPattern = regexp.MustCompile(`^1\.\d+(\.\d+)?$`)

// Builtins are the tags shared by the bundled generators.
var Builtins = []Tag{
	{
		Name: "gomodpath",
		Func: func(fl validator.FieldLevel) bool {
			return module.CheckPath(fl.Field().String()) == nil
		},
		Message:    "must be a valid Go module path",
		Suggestion: "use a path like github.com/org/project",
	},
	{
		Name: "goversion",
		Func: func(fl validator.FieldLevel) bool {
			return goVersionPattern.MatchString(fl.Field().String())
		},
		Message:    "must be a Go version",
		Suggestion: "use a version like 1.25 or 1.25.1",
	},
	{
		Name: "goident",
		Func: func(fl validator.FieldLevel) bool {
			return token.IsIdentifier(fl.Field().String())
		},
		Message: "must be a valid Go identifier",
	},
	{
		Name: "relpath",
		Func: func(fl validator.FieldLevel) bool {
			p := fl.Field().String()
			return p == "" || filepath.IsLocal(p)
		},
		Message:    "must be a relative path inside the project",
		Suggestion: "remove leading slashes and '..' segments",
	},
}

// RegisterBuiltins adds Builtins to r.
func RegisterBuiltins(r *Registry) error {
	for _, tag := range Builtins {
		if err := r.RegisterTag(tag); err != nil {
			return err
		}
	}
	return nil
}
