package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"github.com/hashicorp/go-multierror"

	"github.com/mvp-joe/symseek/internal/classify"
)

var (
	// ErrEmptyMasks indicates a scan without file masks
	ErrEmptyMasks = errors.New("empty scan masks")

	// ErrInvalidPattern indicates a mask or ignore pattern that does not compile
	ErrInvalidPattern = errors.New("invalid glob pattern")

	// ErrInvalidCacheSize indicates a negative demangle cache size
	ErrInvalidCacheSize = errors.New("invalid demangle cache size")

	// ErrInvalidPassOrder indicates an unusable classifier pass order
	ErrInvalidPassOrder = errors.New("invalid classifier pass order")

	// ErrEmptyDatabase indicates a missing catalog path
	ErrEmptyDatabase = errors.New("empty catalog database path")

	// ErrInvalidFormat indicates an unsupported output format
	ErrInvalidFormat = errors.New("invalid output format")

	// ErrInvalidLogLevel indicates an unknown log level
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// Validate checks that the configuration is valid and complete. All
// problems are reported together.
func Validate(cfg *Config) error {
	var result *multierror.Error

	result = multierror.Append(result, validateScan(&cfg.Scan)...)
	result = multierror.Append(result, validateDemangle(&cfg.Demangle)...)

	if strings.TrimSpace(cfg.Storage.Database) == "" {
		result = multierror.Append(result, fmt.Errorf("%w: storage.database is required", ErrEmptyDatabase))
	}

	switch strings.ToLower(cfg.Output.Format) {
	case "table", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("%w: must be 'table' or 'json', got '%s'", ErrInvalidFormat, cfg.Output.Format))
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("%w: must be debug, info, warn or error, got '%s'", ErrInvalidLogLevel, cfg.Log.Level))
	}

	return result.ErrorOrNil()
}

func validateScan(cfg *ScanConfig) []error {
	var errs []error

	if len(cfg.Masks) == 0 {
		errs = append(errs, fmt.Errorf("%w: at least one mask required", ErrEmptyMasks))
	}

	for _, pattern := range append(append([]string{}, cfg.Masks...), cfg.Ignore...) {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errs = append(errs, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err))
		}
	}

	return errs
}

func validateDemangle(cfg *DemangleConfig) []error {
	var errs []error

	if cfg.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("%w: cache_size cannot be negative, got %d", ErrInvalidCacheSize, cfg.CacheSize))
	}

	if _, err := classify.ParsePassOrder(cfg.PassOrder); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidPassOrder, err))
	}

	return errs
}
