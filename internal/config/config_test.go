package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonhull/baseplate/internal/schema"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "baseplate.yml"), []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultProjectFile, cfg.ProjectFile)
	assert.Equal(t, ".baseplate", cfg.SnapshotDir)
	assert.Equal(t, "merge", cfg.Conflicts)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Commands.Timeout)
	assert.True(t, cfg.Formatters.Go.Enabled)
	assert.False(t, cfg.TemplateMetadata.Enabled)
	assert.Empty(t, cfg.File)
	assert.Equal(t, filepath.Join(dir, ".baseplate"), cfg.SnapshotPath())
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
snapshotDir: .generated
conflicts: skip
workers: 2
templateMetadata:
  enabled: true
commands:
  timeout: 30s
formatters:
  go:
    fixImports: true
  external:
    - name: prettier
      patterns: ["*.ts", "*.json"]
      command: ["prettier", "--stdin-filepath", "{path}"]
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ".generated", cfg.SnapshotDir)
	assert.Equal(t, "skip", cfg.Conflicts)
	assert.Equal(t, 2, cfg.Workers)
	assert.True(t, cfg.TemplateMetadata.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Commands.Timeout)
	assert.True(t, cfg.Formatters.Go.Enabled, "defaults fill unset nested keys")
	assert.True(t, cfg.Formatters.Go.FixImports)
	require.Len(t, cfg.Formatters.External, 1)
	assert.Equal(t, []string{"prettier", "--stdin-filepath", "{path}"}, cfg.Formatters.External[0].Command)
	assert.Equal(t, filepath.Join(dir, "baseplate.yml"), cfg.File)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "workers: 2\n")
	t.Setenv("BASEPLATE_WORKERS", "6")
	t.Setenv("BASEPLATE_COMMANDS_SKIP", "true")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Workers)
	assert.True(t, cfg.Commands.Skip)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BASEPLATE_CONFLICTS=force\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("BASEPLATE_CONFLICTS") })

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "force", cfg.Conflicts)
}

func TestLoad_ValidationErrors(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
snapshotDir: ../outside
conflicts: theirs
workers: 0
formatters:
  external:
    - name: broken
`)

	_, err := Load(dir)
	var ve schema.ValidationErrors
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.ElementsMatch(t, []string{
		"baseplate.snapshotDir",
		"baseplate.conflicts",
		"baseplate.workers",
		"baseplate.formatters.external[0].patterns",
		"baseplate.formatters.external[0].command",
	}, ve.Fields())
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "workers: [1\n")

	_, err := Load(dir)
	assert.ErrorContains(t, err, "failed to read baseplate.yml")
}
