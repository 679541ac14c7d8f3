package engine

import (
	"fmt"
	"path"
	"strings"

	"github.com/simonhull/baseplate/internal/exec"
	"github.com/simonhull/baseplate/internal/provider"
	"github.com/simonhull/baseplate/internal/render"
	"github.com/simonhull/baseplate/internal/templates"
)

// OutputFile is a generated file waiting to be reconciled.
type OutputFile struct {
	Path                 string
	Contents             []byte
	SkipFormatting       bool
	ShouldNeverOverwrite bool
	Template             *templates.Metadata
	Task                 string
}

// Diagnostic is a warning emitted by a build step.
type Diagnostic struct {
	Task    string
	Message string
}

// BuilderAction is a deferred request against a builder. Validate runs
// first; Execute is only called when it passes.
type BuilderAction interface {
	Validate(b *Builder) error
	Execute(b *Builder) error
	Description() string
}

// Builder collects the effects of one task's build step. Each build step
// gets its own builder, so a builder is never shared between goroutines.
type Builder struct {
	task     *TaskEntry
	node     *GeneratorEntry
	renderer *render.Renderer

	files       []*OutputFile
	paths       map[string]bool
	commands    []exec.Command
	outputs     provider.Values
	diagnostics []Diagnostic
}

func newBuilder(task *TaskEntry, node *GeneratorEntry, r *render.Renderer) *Builder {
	return &Builder{
		task:     task,
		node:     node,
		renderer: r,
		paths:    make(map[string]bool),
		outputs:  make(provider.Values),
	}
}

// Task returns the ID of the task being built.
func (b *Builder) Task() string {
	return b.task.ID
}

// Node returns the generator instance the task belongs to.
func (b *Builder) Node() *GeneratorEntry {
	return b.node
}

// Apply validates and executes an action.
func (b *Builder) Apply(a BuilderAction) error {
	if err := a.Validate(b); err != nil {
		return fmt.Errorf("%s: %w", a.Description(), err)
	}
	if err := a.Execute(b); err != nil {
		return fmt.Errorf("%s: %w", a.Description(), err)
	}
	return nil
}

// WriteFile queues a file write.
func (b *Builder) WriteFile(opts WriteFileOptions) error {
	return b.Apply(&opts)
}

// WriteTemplate renders a template and queues the result with provenance.
func (b *Builder) WriteTemplate(opts TemplateOptions) error {
	return b.Apply(&opts)
}

// AddPostWriteCommand queues a command to run after files are on disk.
func (b *Builder) AddPostWriteCommand(cmd exec.Command) {
	b.commands = append(b.commands, cmd)
}

// SetOutput publishes a value declared in the task's Outputs.
func (b *Builder) SetOutput(name string, value any) error {
	exp, ok := b.task.Outputs[name]
	if !ok {
		return fmt.Errorf("task %s declares no output %q", b.task.ID, name)
	}
	if !exp.Accepts(value) {
		return fmt.Errorf("output %q of task %s has the wrong type %T", name, b.task.ID, value)
	}
	b.outputs[name] = value
	return nil
}

// Warn records a diagnostic.
func (b *Builder) Warn(format string, args ...any) {
	b.diagnostics = append(b.diagnostics, Diagnostic{Task: b.task.ID, Message: fmt.Sprintf(format, args...)})
}

// Files returns the files queued so far.
func (b *Builder) Files() []*OutputFile {
	return b.files
}

// WriteFileOptions describes one file write.
type WriteFileOptions struct {
	Path                 string
	Contents             []byte
	SkipFormatting       bool
	ShouldNeverOverwrite bool
	Template             *templates.Metadata
}

func (o *WriteFileOptions) Description() string {
	return fmt.Sprintf("write %s (%d bytes)", o.Path, len(o.Contents))
}

func (o *WriteFileOptions) Validate(b *Builder) error {
	if err := ValidatePath(o.Path); err != nil {
		return err
	}
	if o.Contents == nil {
		return fmt.Errorf("content is nil")
	}
	if b.paths[path.Clean(o.Path)] {
		return fmt.Errorf("path written twice by %s", b.task.ID)
	}
	if o.Template != nil && !o.Template.Kind.Valid() {
		return fmt.Errorf("template %s has unknown kind %q", o.Template.Template, o.Template.Kind)
	}
	return nil
}

func (o *WriteFileOptions) Execute(b *Builder) error {
	p := path.Clean(o.Path)
	b.paths[p] = true
	b.files = append(b.files, &OutputFile{
		Path:                 p,
		Contents:             o.Contents,
		SkipFormatting:       o.SkipFormatting,
		ShouldNeverOverwrite: o.ShouldNeverOverwrite,
		Template:             o.Template,
		Task:                 b.task.ID,
	})
	return nil
}

// TemplateOptions describes a templated write.
type TemplateOptions struct {
	// Mount is the renderer mount holding the template; it defaults to the
	// generator name.
	Mount    string
	Template string
	Path     string
	Data     any

	// Kind defaults to KindInstance.
	Kind                 templates.Kind
	Variables            map[string]string
	SkipFormatting       bool
	ShouldNeverOverwrite bool
}

func (o *TemplateOptions) Description() string {
	return fmt.Sprintf("render %s to %s", o.Template, o.Path)
}

func (o *TemplateOptions) Validate(b *Builder) error {
	if o.Template == "" {
		return fmt.Errorf("no template given")
	}
	if o.Kind != "" && !o.Kind.Valid() {
		return fmt.Errorf("unknown template kind %q", o.Kind)
	}
	return ValidatePath(o.Path)
}

func (o *TemplateOptions) Execute(b *Builder) error {
	mount := o.Mount
	if mount == "" {
		mount = b.node.Generator.Name
	}
	contents, err := b.renderer.Render(mount, o.Template, o.Data)
	if err != nil {
		return err
	}
	if contents == nil {
		contents = []byte{}
	}

	kind := o.Kind
	if kind == "" {
		kind = templates.KindInstance
	}
	write := WriteFileOptions{
		Path:                 o.Path,
		Contents:             contents,
		SkipFormatting:       o.SkipFormatting,
		ShouldNeverOverwrite: o.ShouldNeverOverwrite,
		Template: &templates.Metadata{
			Generator: b.node.Generator.Name,
			Template:  o.Template,
			Kind:      kind,
			Variables: o.Variables,
		},
	}
	return b.Apply(&write)
}

// ValidatePath checks that p is a relative slash-separated path that stays
// inside the output root.
func ValidatePath(p string) error {
	if p == "" {
		return fmt.Errorf("path is empty")
	}
	if strings.Contains(p, `\`) {
		return fmt.Errorf("path %q must use forward slashes", p)
	}
	if path.IsAbs(p) {
		return fmt.Errorf("path %q must be relative", p)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("path %q escapes the output directory", p)
	}
	return nil
}
