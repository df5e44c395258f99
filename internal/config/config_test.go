package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Config System:
// - Default() returns valid configuration with all expected defaults
// - LoadConfigFromDir() uses defaults when no config file exists
// - LoadConfigFromDir() loads from .symseek/config.yml and .symseek/config.yaml
// - Config file values merge with defaults
// - Environment variables override config file values and defaults
// - An explicit config file must exist
// - Malformed YAML and invalid values are errors
// - Validate() rejects empty masks, bad globs, negative cache size, bad pass
//   order, empty database, unknown format and log level
// - Validate() reports every problem at once
// - DatabasePath resolves relative paths against the root

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	configDir := filepath.Join(dir, DirName)
	require.NoError(t, os.MkdirAll(configDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, name), []byte(content), 0644))
}

func TestDefault_ReturnsValidConfiguration(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NotNil(t, cfg)

	assert.Contains(t, cfg.Scan.Masks, "*.dll")
	assert.Contains(t, cfg.Scan.Masks, "*.so.*")
	assert.Contains(t, cfg.Scan.Ignore, ".git/**")
	assert.False(t, cfg.Scan.FollowSymlinks)
	assert.Equal(t, 10000, cfg.Demangle.CacheSize)
	assert.Equal(t, []string{"const", "access", "modifier"}, cfg.Demangle.PassOrder)
	assert.Equal(t, filepath.Join(".symseek", "catalog.db"), cfg.Storage.Database)
	assert.Equal(t, "table", cfg.Output.Format)
	assert.Equal(t, "warn", cfg.Log.Level)

	assert.NoError(t, Validate(cfg))
}

func TestLoadConfig_UsesDefaultsWhenNoConfigFile(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFromDir(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadConfig_LoadsFromConfigFile(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"config.yml", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			writeConfig(t, dir, name, `
scan:
  masks: ["*.dll", "*.exe"]
  follow_symlinks: true
demangle:
  pass_order: [access, modifier, const]
output:
  format: json
`)

			cfg, err := LoadConfigFromDir(dir)
			require.NoError(t, err)
			assert.Equal(t, []string{"*.dll", "*.exe"}, cfg.Scan.Masks)
			assert.True(t, cfg.Scan.FollowSymlinks)
			assert.Equal(t, []string{"access", "modifier", "const"}, cfg.Demangle.PassOrder)
			assert.Equal(t, "json", cfg.Output.Format)

			// Untouched sections keep their defaults
			assert.Equal(t, Default().Scan.Ignore, cfg.Scan.Ignore)
			assert.Equal(t, 10000, cfg.Demangle.CacheSize)
			assert.Equal(t, "warn", cfg.Log.Level)
		})
	}
}

func TestLoadConfig_EnvironmentVariablesOverride(t *testing.T) {
	// Not parallel: modifies the process environment.
	dir := t.TempDir()
	writeConfig(t, dir, "config.yml", `
demangle:
  cache_size: 50
log:
  level: info
`)

	t.Setenv("SYMSEEK_DEMANGLE_CACHE_SIZE", "0")
	t.Setenv("SYMSEEK_STORAGE_DATABASE", "/var/lib/symseek.db")
	t.Setenv("SYMSEEK_SCAN_MASKS", "*.so,*.a")

	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Demangle.CacheSize)
	assert.Equal(t, "/var/lib/symseek.db", cfg.Storage.Database)
	assert.Equal(t, []string{"*.so", "*.a"}, cfg.Scan.Masks)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := NewFileLoader(dir, filepath.Join(dir, "missing.yml")).Load()
	assert.Error(t, err)

	path := filepath.Join(dir, "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0644))
	cfg, err := NewFileLoader(dir, path).Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeConfig(t, dir, "config.yml", "scan: [unclosed\n")
		_, err := LoadConfigFromDir(dir)
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeConfig(t, dir, "config.yml", "output:\n  format: xml\n")
		_, err := LoadConfigFromDir(dir)
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})
}

func TestValidate_RejectsInvalidFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"empty masks", func(c *Config) { c.Scan.Masks = nil }, ErrEmptyMasks},
		{"bad mask", func(c *Config) { c.Scan.Masks = []string{"[unterminated"} }, ErrInvalidPattern},
		{"bad ignore", func(c *Config) { c.Scan.Ignore = []string{"build/[abc"} }, ErrInvalidPattern},
		{"negative cache", func(c *Config) { c.Demangle.CacheSize = -1 }, ErrInvalidCacheSize},
		{"unknown pass", func(c *Config) { c.Demangle.PassOrder = []string{"const", "access", "virtual"} }, ErrInvalidPassOrder},
		{"short pass order", func(c *Config) { c.Demangle.PassOrder = []string{"const"} }, ErrInvalidPassOrder},
		{"empty database", func(c *Config) { c.Storage.Database = " " }, ErrEmptyDatabase},
		{"format", func(c *Config) { c.Output.Format = "csv" }, ErrInvalidFormat},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, ErrInvalidLogLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.modify(cfg)
			assert.ErrorIs(t, Validate(cfg), tt.want)
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Scan.Masks = nil
	cfg.Demangle.CacheSize = -5
	cfg.Log.Level = "loud"

	err := Validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyMasks)
	assert.ErrorIs(t, err, ErrInvalidCacheSize)
	assert.ErrorIs(t, err, ErrInvalidLogLevel)
	assert.Contains(t, err.Error(), "3 errors occurred")
}

func TestConfig_DatabasePath(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.Equal(t, filepath.Join("/proj", ".symseek", "catalog.db"), cfg.DatabasePath("/proj"))

	cfg.Storage.Database = "/abs/catalog.db"
	assert.Equal(t, "/abs/catalog.db", cfg.DatabasePath("/proj"))
}
