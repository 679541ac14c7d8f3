package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ExtractorFileName is the per-generator extraction config.
const ExtractorFileName = "extractor.json"

// TemplateEntry describes one template source in extractor.json.
// Keys other than the known ones are preserved across load and save.
type TemplateEntry struct {
	SourceFile string
	Type       Kind
	Variables  map[string]string
	Extra      map[string]json.RawMessage
}

var templateEntryKeys = []string{"sourceFile", "type", "variables"}

func (e TemplateEntry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Extra)+3)
	for k, v := range e.Extra {
		out[k] = v
	}
	out["sourceFile"] = e.SourceFile
	out["type"] = e.Type
	if len(e.Variables) > 0 {
		out["variables"] = e.Variables
	}
	return json.Marshal(out)
}

func (e *TemplateEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["sourceFile"]; ok {
		if err := json.Unmarshal(v, &e.SourceFile); err != nil {
			return fmt.Errorf("sourceFile: %w", err)
		}
	}
	if v, ok := raw["type"]; ok {
		if err := json.Unmarshal(v, &e.Type); err != nil {
			return fmt.Errorf("type: %w", err)
		}
	}
	if v, ok := raw["variables"]; ok {
		if err := json.Unmarshal(v, &e.Variables); err != nil {
			return fmt.Errorf("variables: %w", err)
		}
	}
	for _, k := range templateEntryKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		e.Extra = raw
	}
	return nil
}

// ExtractorConfig is the contents of extractor.json.
type ExtractorConfig struct {
	Name       string
	Templates  map[string]TemplateEntry
	Extractors json.RawMessage
	Plugins    json.RawMessage
	Extra      map[string]json.RawMessage
}

var extractorKeys = []string{"name", "templates", "extractors", "plugins"}

func (c ExtractorConfig) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+4)
	for k, v := range c.Extra {
		out[k] = v
	}
	out["name"] = c.Name
	templates := c.Templates
	if templates == nil {
		templates = map[string]TemplateEntry{}
	}
	out["templates"] = templates
	if len(c.Extractors) > 0 {
		out["extractors"] = c.Extractors
	}
	if len(c.Plugins) > 0 {
		out["plugins"] = c.Plugins
	}
	return json.Marshal(out)
}

func (c *ExtractorConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["name"]; ok {
		if err := json.Unmarshal(v, &c.Name); err != nil {
			return fmt.Errorf("name: %w", err)
		}
	}
	if v, ok := raw["templates"]; ok {
		if err := json.Unmarshal(v, &c.Templates); err != nil {
			return fmt.Errorf("templates: %w", err)
		}
	}
	c.Extractors = raw["extractors"]
	c.Plugins = raw["plugins"]
	for _, k := range extractorKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		c.Extra = raw
	}
	return nil
}

// LoadExtractorConfig reads extractor.json from dir. A missing file yields
// an empty config named after the directory.
func LoadExtractorConfig(dir string) (*ExtractorConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, ExtractorFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return &ExtractorConfig{Name: filepath.Base(dir), Templates: map[string]TemplateEntry{}}, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg ExtractorConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Join(dir, ExtractorFileName), err)
	}
	if cfg.Templates == nil {
		cfg.Templates = map[string]TemplateEntry{}
	}
	return &cfg, nil
}

// Save writes the config to dir/extractor.json.
func (c *ExtractorConfig) Save(dir string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ExtractorFileName), append(data, '\n'), 0644)
}

// ExtractResult lists the templates written by Extract.
type ExtractResult struct {
	Generator string
	Templates []string
}

// Extract copies the project files tracked for generator into
// generatorDir/templates and records them in generatorDir/extractor.json.
func Extract(projectRoot, generatorDir, generator string, tracker *Tracker) (*ExtractResult, error) {
	cfg, err := LoadExtractorConfig(generatorDir)
	if err != nil {
		return nil, err
	}
	if cfg.Name == "" || cfg.Name == filepath.Base(generatorDir) {
		cfg.Name = generator
	}

	result := &ExtractResult{Generator: generator}
	for _, src := range tracker.ByGenerator(generator) {
		name := src.Metadata.Template
		if !filepath.IsLocal(name) {
			return nil, fmt.Errorf("template name %q is not a relative path", name)
		}

		data, err := os.ReadFile(filepath.Join(projectRoot, filepath.FromSlash(src.Path)))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", src.Path, err)
		}
		dest := filepath.Join(generatorDir, "templates", filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(dest, data, 0644); err != nil {
			return nil, err
		}

		entry := cfg.Templates[name]
		entry.SourceFile = src.Path
		entry.Type = src.Metadata.Kind
		entry.Variables = src.Metadata.Variables
		cfg.Templates[name] = entry
		result.Templates = append(result.Templates, name)
	}
	sort.Strings(result.Templates)

	if err := cfg.Save(generatorDir); err != nil {
		return nil, err
	}
	return result, nil
}
