package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrFrozen is returned when a registry is extended after Build.
var ErrFrozen = errors.New("schema registry is frozen")

// Tag is a custom validation tag contributed by a generator.
type Tag struct {
	Name       string
	Func       validator.Func
	Message    string
	Suggestion string
}

type structRule struct {
	fn    validator.StructLevelFunc
	types []any
}

// Registry collects validation extensions until Build is called.
type Registry struct {
	mu     sync.Mutex
	tags   map[string]Tag
	order  []string
	rules  []structRule
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tags: make(map[string]Tag)}
}

// RegisterTag adds a custom tag. Tag names must be unique.
func (r *Registry) RegisterTag(tag Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("register tag %q: %w", tag.Name, ErrFrozen)
	}
	if tag.Name == "" || tag.Func == nil {
		return fmt.Errorf("register tag: name and func are required")
	}
	if _, exists := r.tags[tag.Name]; exists {
		return fmt.Errorf("register tag %q: already registered", tag.Name)
	}
	r.tags[tag.Name] = tag
	r.order = append(r.order, tag.Name)
	return nil
}

// RegisterStructRule adds a struct-level rule for the given config types.
// Rules report failures through validator.StructLevel.ReportError.
func (r *Registry) RegisterStructRule(fn validator.StructLevelFunc, types ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("register struct rule: %w", ErrFrozen)
	}
	r.rules = append(r.rules, structRule{fn: fn, types: types})
	return nil
}

// Build freezes the registry and returns the validator built from it.
func (r *Registry) Build() (*Validator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(fieldName)

	messages := make(map[string]Tag, len(r.tags))
	for _, name := range r.order {
		tag := r.tags[name]
		if err := v.RegisterValidation(tag.Name, tag.Func); err != nil {
			return nil, fmt.Errorf("register tag %q: %w", tag.Name, err)
		}
		messages[name] = tag
	}
	for _, rule := range r.rules {
		v.RegisterStructValidation(rule.fn, rule.types...)
	}

	r.frozen = true
	return &Validator{validate: v, tags: messages}, nil
}

// fieldName reports config fields by their mapstructure key so error paths
// match what users write in project files.
func fieldName(f reflect.StructField) string {
	for _, key := range []string{"mapstructure", "yaml", "json"} {
		name := strings.SplitN(f.Tag.Get(key), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

// Validator validates decoded config structs. It is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
	tags     map[string]Tag
}

// Validate checks cfg and returns ValidationErrors naming every violated
// field, each prefixed with prefix.
func (v *Validator) Validate(prefix string, cfg any) error {
	if cfg == nil {
		return nil
	}
	val := reflect.ValueOf(cfg)
	for val.Kind() == reflect.Pointer {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil
	}

	err := v.validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate %s: %w", prefix, err)
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, v.convert(prefix, fe))
	}
	return out
}

func (v *Validator) convert(prefix string, fe validator.FieldError) ValidationError {
	path := fe.Namespace()
	// Drop the struct type name that leads every namespace.
	if i := strings.Index(path, "."); i >= 0 {
		path = path[i+1:]
	}
	if prefix != "" {
		path = prefix + "." + path
	}

	ve := ValidationError{Field: path, Message: message(fe)}
	if tag, ok := v.tags[fe.Tag()]; ok {
		if tag.Message != "" {
			ve.Message = tag.Message
		}
		ve.Suggestion = tag.Suggestion
	}
	return ve
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "url":
		return "must be a valid URL"
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s check", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}
