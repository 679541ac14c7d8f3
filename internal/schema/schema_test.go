package schema

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type moduleConfig struct {
	Path      string   `mapstructure:"path" validate:"required,gomodpath"`
	GoVersion string   `mapstructure:"goVersion" validate:"required,goversion"`
	Layout    string   `mapstructure:"layout" validate:"omitempty,oneof=flat cmd"`
	Binary    string   `mapstructure:"binary"`
	Tags      []string `mapstructure:"tags"`
}

func buildValidator(t *testing.T, extra func(r *Registry)) *Validator {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))
	if extra != nil {
		extra(r)
	}
	v, err := r.Build()
	require.NoError(t, err)
	return v
}

func TestValidator_ReportsEveryField(t *testing.T) {
	v := buildValidator(t, nil)

	err := v.Validate("app", &moduleConfig{Path: "not a path", Layout: "tree"})
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.ElementsMatch(t, []string{"app.path", "app.goVersion", "app.layout"}, verrs.Fields())
	assert.Contains(t, err.Error(), "invalid configuration (3 problems)")

	for _, ve := range verrs {
		if ve.Field == "app.path" {
			assert.Equal(t, "must be a valid Go module path", ve.Message)
			assert.NotEmpty(t, ve.Suggestion)
		}
	}
}

func TestValidator_ValidConfig(t *testing.T) {
	v := buildValidator(t, nil)
	err := v.Validate("app", &moduleConfig{Path: "github.com/acme/app", GoVersion: "1.25"})
	assert.NoError(t, err)

	// Non-struct configs have nothing to validate
	assert.NoError(t, v.Validate("app", nil))
	assert.NoError(t, v.Validate("app", map[string]any{}))
}

func TestRegistry_StructRule(t *testing.T) {
	v := buildValidator(t, func(r *Registry) {
		require.NoError(t, r.RegisterStructRule(func(sl validator.StructLevel) {
			cfg := sl.Current().Interface().(moduleConfig)
			if cfg.Layout == "cmd" && cfg.Binary == "" {
				sl.ReportError(cfg.Binary, "binary", "Binary", "required_with_cmd", "")
			}
		}, moduleConfig{}))
	})

	err := v.Validate("svc", &moduleConfig{Path: "example.com/svc", GoVersion: "1.24", Layout: "cmd"})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "svc.binary", verrs[0].Field)
}

func TestRegistry_FrozenAfterBuild(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build()
	require.NoError(t, err)

	err = r.RegisterTag(Tag{Name: "late", Func: func(validator.FieldLevel) bool { return true }})
	assert.True(t, errors.Is(err, ErrFrozen))

	err = r.RegisterStructRule(func(validator.StructLevel) {}, moduleConfig{})
	assert.True(t, errors.Is(err, ErrFrozen))
}

func TestRegistry_DuplicateTag(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))
	assert.Error(t, r.RegisterTag(Builtins[0]))
}

func TestBuiltins(t *testing.T) {
	type cfg struct {
		Ident string `mapstructure:"ident" validate:"omitempty,goident"`
		Dir   string `mapstructure:"dir" validate:"relpath"`
	}
	v := buildValidator(t, nil)

	tests := []struct {
		name   string
		cfg    cfg
		fields []string
	}{
		{"valid", cfg{Ident: "server", Dir: "internal/server"}, nil},
		{"bad ident", cfg{Ident: "1abc"}, []string{"c.ident"}},
		{"absolute dir", cfg{Dir: "/etc"}, []string{"c.dir"}},
		{"escaping dir", cfg{Dir: "../outside"}, []string{"c.dir"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate("c", &tt.cfg)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, tt.fields, verrs.Fields())
		})
	}
}

func TestDecode(t *testing.T) {
	var cfg moduleConfig
	err := Decode("app", map[string]any{
		"path":      "github.com/acme/app",
		"goVersion": 1.25,
		"tags":      "a,b",
	}, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "github.com/acme/app", cfg.Path)
	assert.Equal(t, "1.25", cfg.GoVersion)
	assert.Equal(t, []string{"a", "b"}, cfg.Tags)

	err = Decode("app", map[string]any{"pth": "typo"}, &moduleConfig{})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "app", verrs[0].Field)
	assert.Contains(t, verrs[0].Message, "pth")
}

func TestValidationErrors_Error(t *testing.T) {
	single := ValidationErrors{{Field: "a", Message: "is required"}}
	assert.Equal(t, "invalid configuration: a: is required", single.Error())

	hinted := ValidationErrors{{Field: "a", Message: "is required"}, {Field: "b", Message: "is bad", Suggestion: "fix it"}}
	assert.Equal(t, "invalid configuration (2 problems):\n  - a: is required\n  - b: is bad (fix it)", hinted.Error())

	assert.Equal(t, "invalid configuration", ValidationErrors{}.Error())
}
