// Package config loads baseplate.yml.
//
// Settings come from, in increasing priority: built-in defaults,
// baseplate.yml in the project directory, and BASEPLATE_* environment
// variables. A .env file next to baseplate.yml is loaded into the process
// environment first, without overriding variables that are already set.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/simonhull/baseplate/internal/schema"
)

const (
	// FileName is the config file name without extension.
	FileName = "baseplate"
	// EnvPrefix prefixes environment overrides, e.g. BASEPLATE_WORKERS.
	EnvPrefix = "BASEPLATE"
	// DefaultProjectFile is the project definition read by generate.
	DefaultProjectFile = "baseplate.project.yml"
)

// Config is the tool configuration for one project directory.
type Config struct {
	ProjectFile      string           `mapstructure:"projectFile" validate:"required,relpath"`
	SnapshotDir      string           `mapstructure:"snapshotDir" validate:"required,relpath"`
	Conflicts        string           `mapstructure:"conflicts" validate:"oneof=merge force skip interactive"`
	Workers          int              `mapstructure:"workers" validate:"min=1,max=256"`
	LogLevel         string           `mapstructure:"logLevel" validate:"oneof=debug info warn error silent"`
	TemplateMetadata TemplateMetadata `mapstructure:"templateMetadata"`
	Commands         Commands         `mapstructure:"commands"`
	Formatters       Formatters       `mapstructure:"formatters"`

	// Dir is the directory the config was loaded for. File is the config
	// file that was read, empty when only defaults applied.
	Dir  string `mapstructure:"-"`
	File string `mapstructure:"-"`
}

// TemplateMetadata controls provenance sidecars.
type TemplateMetadata struct {
	Enabled bool `mapstructure:"enabled"`
}

// Commands configures post-write commands.
type Commands struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Skip    bool          `mapstructure:"skip"`
}

// Formatters configures the formatting pipeline.
type Formatters struct {
	Go       GoFormatter         `mapstructure:"go"`
	External []ExternalFormatter `mapstructure:"external" validate:"dive"`
}

// GoFormatter configures gofmt-style formatting of .go files.
type GoFormatter struct {
	Enabled    bool `mapstructure:"enabled"`
	FixImports bool `mapstructure:"fixImports"`
}

// ExternalFormatter runs a command that reads a file on stdin and writes
// the formatted file to stdout. "{path}" in Command is replaced by the
// file path.
type ExternalFormatter struct {
	Name     string   `mapstructure:"name" validate:"required"`
	Patterns []string `mapstructure:"patterns" validate:"required,min=1"`
	Command  []string `mapstructure:"command" validate:"required,min=1"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("projectFile", DefaultProjectFile)
	v.SetDefault("snapshotDir", ".baseplate")
	v.SetDefault("conflicts", "merge")
	v.SetDefault("workers", 8)
	v.SetDefault("logLevel", "warn")
	v.SetDefault("templateMetadata.enabled", false)
	v.SetDefault("commands.timeout", "5m")
	v.SetDefault("commands.skip", false)
	v.SetDefault("formatters.go.enabled", true)
	v.SetDefault("formatters.go.fixImports", false)
}

// Load reads the configuration for dir.
func Load(dir string) (*Config, error) {
	envFile := filepath.Join(dir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	// Enable environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read %s.yml: %w", FileName, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s.yml: %w", FileName, err)
	}
	cfg.Dir = dir
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	r := schema.NewRegistry()
	if err := schema.RegisterBuiltins(r); err != nil {
		return err
	}
	v, err := r.Build()
	if err != nil {
		return err
	}
	return v.Validate(FileName, c)
}

// SnapshotPath returns the absolute snapshot directory.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.Dir, c.SnapshotDir)
}

// ProjectPath returns the absolute project definition path.
func (c *Config) ProjectPath() string {
	return filepath.Join(c.Dir, c.ProjectFile)
}
