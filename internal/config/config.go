// Package config loads symseek settings from .symseek/config.yml and the
// environment.
package config

import "path/filepath"

// DirName is the per-project settings and catalog directory.
const DirName = ".symseek"

// Config represents the complete symseek configuration.
// It can be loaded from .symseek/config.yml with environment variable overrides.
type Config struct {
	Scan     ScanConfig     `yaml:"scan" mapstructure:"scan"`
	Demangle DemangleConfig `yaml:"demangle" mapstructure:"demangle"`
	Storage  StorageConfig  `yaml:"storage" mapstructure:"storage"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ScanConfig defines which files are candidates for a scan.
type ScanConfig struct {
	Masks          []string `yaml:"masks" mapstructure:"masks"`                     // file name globs
	Ignore         []string `yaml:"ignore" mapstructure:"ignore"`                   // relative path globs to skip
	FollowSymlinks bool     `yaml:"follow_symlinks" mapstructure:"follow_symlinks"` // include symlinked files
}

// DemangleConfig tunes name demangling and classification.
type DemangleConfig struct {
	CacheSize    int      `yaml:"cache_size" mapstructure:"cache_size"`       // 0 disables the cache
	PassOrder    []string `yaml:"pass_order" mapstructure:"pass_order"`       // classifier pass order
	PortableOnly bool     `yaml:"portable_only" mapstructure:"portable_only"` // never call the OS undecorator
}

// StorageConfig locates the catalog database.
type StorageConfig struct {
	Database string `yaml:"database" mapstructure:"database"` // relative paths resolve against the project root
}

// OutputConfig selects the default result rendering.
type OutputConfig struct {
	Format string `yaml:"format" mapstructure:"format"` // "table" or "json"
}

// LogConfig sets the diagnostic log level.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"` // debug, info, warn, error
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			Masks: []string{
				"*.exe",
				"*.dll",
				"*.sys",
				"*.lib",
				"*.obj",
				"*.o",
				"*.a",
				"*.so",
				"*.so.*",
			},
			Ignore: []string{
				".git/**",
				DirName + "/**",
			},
		},
		Demangle: DemangleConfig{
			CacheSize: 10000,
			PassOrder: []string{"const", "access", "modifier"},
		},
		Storage: StorageConfig{
			Database: filepath.Join(DirName, "catalog.db"),
		},
		Output: OutputConfig{
			Format: "table",
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// DatabasePath resolves the catalog location against rootDir.
func (c *Config) DatabasePath(rootDir string) string {
	if filepath.IsAbs(c.Storage.Database) {
		return c.Storage.Database
	}
	return filepath.Join(rootDir, c.Storage.Database)
}
