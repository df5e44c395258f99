// Package seeker walks a directory tree and collects the symbols of every
// binary it recognises.
package seeker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/mvp-joe/symseek/internal/classify"
	"github.com/mvp-joe/symseek/internal/demangle"
	"github.com/mvp-joe/symseek/internal/format"
	"github.com/mvp-joe/symseek/internal/symbol"
)

// ErrNotADirectory is returned by Scan when the root is not a directory.
var ErrNotADirectory = errors.New("not a directory")

// maxPresize caps the buffer pre-allocated from a reader's symbol count.
const maxPresize = 1 << 16

// Config holds the dependencies of a Seeker. Zero fields get defaults.
type Config struct {
	Registry   *format.Registry
	Classifier *classify.Classifier
	Progress   ProgressReporter
	Logger     log.Logger

	// Ignore and FollowSymlinks are passed to FileDiscovery.
	Ignore         []string
	FollowSymlinks bool
}

// Seeker runs scans. A single Seeker runs one scan at a time; Interrupt may
// be called from any goroutine.
type Seeker struct {
	registry       *format.Registry
	classifier     *classify.Classifier
	progress       ProgressReporter
	logger         log.Logger
	ignore         []string
	followSymlinks bool

	interrupted atomic.Bool
}

// New creates a Seeker.
func New(cfg Config) *Seeker {
	s := &Seeker{
		registry:       cfg.Registry,
		classifier:     cfg.Classifier,
		progress:       cfg.Progress,
		logger:         cfg.Logger,
		ignore:         cfg.Ignore,
		followSymlinks: cfg.FollowSymlinks,
	}
	if s.registry == nil {
		s.registry = format.DefaultRegistry()
	}
	if s.classifier == nil {
		s.classifier = classify.New(demangle.NewAuto(), classify.ConstFirst)
	}
	if s.progress == nil {
		s.progress = &NoOpProgressReporter{}
	}
	if s.logger == nil {
		s.logger = log.NewNopLogger()
	}
	return s
}

// Interrupt asks the running scan to stop at the next file boundary. The
// file being processed when the request is observed is discarded.
func (s *Seeker) Interrupt() {
	s.interrupted.Store(true)
}

// Scan finds the files under dir matching any of masks and extracts their
// symbols, offering each one to handler. A nil handler keeps everything.
//
// Interruption, either through Interrupt or by cancelling ctx, is not an
// error: the files completed so far are returned with a nil error.
func (s *Seeker) Scan(ctx context.Context, dir string, masks []string, handler symbol.Handler) ([]symbol.SymbolsInBinary, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, dir)
	}

	discovery, err := NewFileDiscovery(dir, masks, DiscoveryOptions{
		Ignore:         s.ignore,
		FollowSymlinks: s.followSymlinks,
		Logger:         s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid file mask: %w", err)
	}

	files := discovery.DiscoverFiles()
	level.Debug(s.logger).Log("msg", "discovered files", "dir", dir, "count", len(files))

	return s.ScanFiles(ctx, files, handler), nil
}

// ScanFiles extracts the symbols of an explicit list of files, with the same
// events and interruption rules as Scan.
func (s *Seeker) ScanFiles(ctx context.Context, files []string, handler symbol.Handler) []symbol.SymbolsInBinary {
	if handler == nil {
		handler = symbol.AcceptAll
	}

	result := make([]symbol.SymbolsInBinary, 0, len(files))
	remaining := len(files)
	s.progress.OnStartProcessingItems(remaining)

	for _, path := range files {
		if s.checkInterrupted(ctx) {
			return result
		}

		s.progress.OnItemStatus(path, symbol.Start)
		symbols, ok := s.scanFile(path, handler)

		// A request that arrived while the file was being read drops it.
		if s.checkInterrupted(ctx) {
			return result
		}

		if ok {
			result = append(result, symbol.SymbolsInBinary{BinaryPath: path, Symbols: symbols})
			s.progress.OnItemStatus(path, symbol.Finish)
		} else {
			s.progress.OnItemStatus(path, symbol.Reject)
		}

		remaining--
		s.progress.OnItemsRemaining(remaining)
	}

	return result
}

// checkInterrupted consumes a pending interrupt request or context
// cancellation and reports it.
func (s *Seeker) checkInterrupted(ctx context.Context) bool {
	if !s.interrupted.CompareAndSwap(true, false) && ctx.Err() == nil {
		return false
	}
	level.Info(s.logger).Log("msg", "scan interrupted")
	s.progress.OnInterrupted()
	return true
}

// scanFile returns the accepted symbols of one file, or false when no parser
// recognises it or its tables turn out to be corrupt.
func (s *Seeker) scanFile(path string, handler symbol.Handler) ([]symbol.Symbol, bool) {
	reader, parser, err := s.registry.Open(path)
	if err != nil {
		level.Warn(s.logger).Log("msg", "failed to open binary", "path", path, "parser", parser, "err", err)
		return nil, false
	}
	if reader == nil {
		level.Debug(s.logger).Log("msg", "unrecognised file", "path", path)
		return nil, false
	}
	defer reader.Close()

	symbols := make([]symbol.Symbol, 0, min(reader.SymbolsCount(), maxPresize))
	for raw := range reader.Symbols() {
		sym := s.classifier.Symbol(raw)
		action := handler(sym)
		if action == symbol.Stop {
			break
		}
		if action == symbol.Add {
			symbols = append(symbols, sym)
		}
	}

	if err := reader.Err(); err != nil {
		level.Warn(s.logger).Log("msg", "corrupt symbol tables", "path", path, "parser", parser, "err", err)
		return nil, false
	}

	level.Debug(s.logger).Log("msg", "scanned binary", "path", path, "parser", parser, "symbols", len(symbols))
	return symbols, true
}
