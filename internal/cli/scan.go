package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/symseek/internal/classify"
	"github.com/mvp-joe/symseek/internal/config"
	"github.com/mvp-joe/symseek/internal/demangle"
	"github.com/mvp-joe/symseek/internal/filter"
	"github.com/mvp-joe/symseek/internal/seeker"
	"github.com/mvp-joe/symseek/internal/storage"
	"github.com/mvp-joe/symseek/internal/symbol"
	"github.com/mvp-joe/symseek/internal/watcher"
)

type scanOptions struct {
	masks       []string
	match       string
	ignoreCase  bool
	kinds       []string
	access      []string
	exports     bool
	imports     bool
	limit       int
	save        bool
	incremental bool
	json        bool
	watch       bool
	quiet       bool
}

func newScanCmd(g *globalOptions) *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Scan a directory tree for binaries and list their symbols",
		Long: `Scan walks dir (default: the current directory), opens every file whose
name matches one of the masks and lists the symbols each recognised binary
exports or imports.

Examples:
  # Every symbol of every DLL under ./bin
  symseek scan bin --mask '*.dll'

  # Exported virtual methods whose name mentions Render
  symseek scan --exports --kind method --match Render

  # Save the result to the catalog and keep it current
  symseek scan --save --watch

  # Only rescan binaries added or changed since the last save
  symseek scan --save --incremental
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) > 0 {
				dir = args[0]
			}
			return runScan(cmd, g, opts, dir)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.masks, "mask", "m", nil, "file name mask, repeatable (default: scan.masks)")
	cmd.Flags().StringVar(&opts.match, "match", "", "regular expression a symbol name must match")
	cmd.Flags().BoolVarP(&opts.ignoreCase, "ignore-case", "i", false, "case-insensitive --match")
	cmd.Flags().StringSliceVar(&opts.kinds, "kind", nil, "keep only function, method or variable symbols")
	cmd.Flags().StringSliceVar(&opts.access, "access", nil, "keep only public, protected or private symbols")
	cmd.Flags().BoolVar(&opts.exports, "exports", false, "keep only exported symbols")
	cmd.Flags().BoolVar(&opts.imports, "imports", false, "keep only imported symbols")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "keep at most this many symbols per binary")
	cmd.Flags().BoolVar(&opts.save, "save", false, "save the result to the catalog")
	cmd.Flags().BoolVar(&opts.incremental, "incremental", false, "with --save, only scan binaries changed since the catalog was written")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "watch for changed binaries and rescan them")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "disable progress bars and non-error output")
	cmd.MarkFlagsMutuallyExclusive("exports", "imports")

	return cmd
}

// filterOptions converts the command line into filter options.
func (o *scanOptions) filterOptions() (filter.Options, error) {
	fo := filter.Options{
		Pattern:     o.match,
		IgnoreCase:  o.ignoreCase,
		ExportsOnly: o.exports,
		ImportsOnly: o.imports,
		Limit:       o.limit,
	}
	for _, k := range o.kinds {
		kind, ok := symbol.ParseNameType(k)
		if !ok {
			return fo, fmt.Errorf("unknown symbol kind %q", k)
		}
		fo.Kinds = append(fo.Kinds, kind)
	}
	for _, a := range o.access {
		access, ok := symbol.ParseAccess(a)
		if !ok {
			return fo, fmt.Errorf("unknown access level %q", a)
		}
		fo.Access = append(fo.Access, access)
	}
	return fo, nil
}

// newClassifier builds the demangler chain described by cfg. The returned
// function releases the cache.
func newClassifier(cfg *config.Config) (*classify.Classifier, func(), error) {
	order, err := classify.ParsePassOrder(cfg.Demangle.PassOrder)
	if err != nil {
		return nil, nil, err
	}

	auto := demangle.NewAuto()
	auto.MSVC = demangle.MSVC{PortableOnly: cfg.Demangle.PortableOnly}

	if cfg.Demangle.CacheSize == 0 {
		return classify.New(auto, order), func() {}, nil
	}
	cached, err := demangle.NewCached(auto, cfg.Demangle.CacheSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create demangle cache: %w", err)
	}
	return classify.New(cached, order), cached.Close, nil
}

func runScan(cmd *cobra.Command, g *globalOptions, opts *scanOptions, dir string) error {
	rootDir, err := resolveDir(dir)
	if err != nil {
		return err
	}
	cfg, err := g.loadConfig(rootDir)
	if err != nil {
		return err
	}
	logger := g.logger(cmd.ErrOrStderr(), cfg)

	fo, err := opts.filterOptions()
	if err != nil {
		return err
	}
	symbolFilter, err := filter.New(fo)
	if err != nil {
		return err
	}

	classifier, release, err := newClassifier(cfg)
	if err != nil {
		return err
	}
	defer release()

	masks := opts.masks
	if len(masks) == 0 {
		masks = cfg.Scan.Masks
	}

	asJSON := opts.json || cfg.Output.Format == "json"
	out := cmd.OutOrStdout()
	progress := NewCLIProgressReporter(cmd.ErrOrStderr(), opts.quiet || asJSON)

	s := seeker.New(seeker.Config{
		Classifier:     classifier,
		Progress:       symbolFilter.Progress(progress),
		Logger:         logger,
		Ignore:         cfg.Scan.Ignore,
		FollowSymlinks: cfg.Scan.FollowSymlinks,
	})

	// Set up context with cancellation for Ctrl+C
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			s.Interrupt()
			cancel()
		case <-ctx.Done():
		}
	}()

	if opts.incremental && !opts.save {
		return fmt.Errorf("--incremental requires --save")
	}

	var writer *storage.CatalogWriter
	var detector *seeker.ChangeDetector
	if opts.save {
		db, err := storage.OpenCatalog(cfg.DatabasePath(rootDir), false)
		if err != nil {
			return err
		}
		defer db.Close()
		writer = storage.NewCatalogWriter(db)

		discovery, err := seeker.NewFileDiscovery(rootDir, masks, seeker.DiscoveryOptions{
			Ignore:         cfg.Scan.Ignore,
			FollowSymlinks: cfg.Scan.FollowSymlinks,
			Logger:         logger,
		})
		if err != nil {
			return fmt.Errorf("invalid file mask: %w", err)
		}
		detector = seeker.NewChangeDetector(discovery, storage.NewCatalogReader(db))
	}

	startedAt := time.Now()
	var results []symbol.SymbolsInBinary
	if opts.incremental {
		if _, err := os.Stat(rootDir); err != nil {
			return fmt.Errorf("failed to stat scan root: %w", err)
		}
		changes, err := detector.DetectChanges(ctx, nil)
		if err != nil {
			return err
		}
		level.Info(logger).Log("msg", "change detection", "added", len(changes.Added), "modified", len(changes.Modified),
			"deleted", len(changes.Deleted), "unchanged", len(changes.Unchanged))
		if err := writer.DeleteBinaries(changes.Deleted); err != nil {
			return err
		}
		results = s.ScanFiles(ctx, changes.Pending(), symbolFilter.Handle)
	} else {
		if results, err = s.Scan(ctx, rootDir, masks, symbolFilter.Handle); err != nil {
			return err
		}
	}

	if err := printResults(out, results, progress, asJSON, opts.quiet); err != nil {
		return err
	}

	if writer != nil {
		if err := writer.DeleteBinaries(progress.RejectedPaths()); err != nil {
			return err
		}
		scanID, err := writer.WriteScan(storage.ScanRecord{
			Root:        rootDir,
			Masks:       masks,
			StartedAt:   startedAt,
			FinishedAt:  time.Now(),
			Interrupted: progress.Interrupted(),
		}, results)
		if err != nil {
			return err
		}
		level.Info(logger).Log("msg", "scan saved", "scan_id", scanID, "binaries", len(results))
		if !opts.quiet && !asJSON {
			fmt.Fprintf(out, "✓ Saved to %s\n", cfg.DatabasePath(rootDir))
		}
	}

	if !opts.watch || progress.Interrupted() {
		return nil
	}

	return watchScan(ctx, watchTarget{
		rootDir:  rootDir,
		masks:    masks,
		cfg:      cfg,
		seeker:   s,
		handler:  symbolFilter.Handle,
		writer:   writer,
		detector: detector,
		out:      out,
		asJSON:   asJSON,
		quiet:    opts.quiet,
		logger:   logger,
	}, progress)
}

func printResults(out io.Writer, results []symbol.SymbolsInBinary, progress *CLIProgressReporter, asJSON, quiet bool) error {
	if asJSON {
		return writeJSON(out, newBinaryViews(results))
	}
	writeSymbolTable(out, results)
	if !quiet {
		writeScanSummary(out, results, progress)
	}
	return nil
}

// watchTarget bundles what an incremental rescan needs.
type watchTarget struct {
	rootDir string
	masks   []string
	cfg     *config.Config
	seeker  *seeker.Seeker
	handler symbol.Handler
	writer  *storage.CatalogWriter
	// detector skips files whose content did not change; nil without --save
	detector *seeker.ChangeDetector
	out      io.Writer
	asJSON   bool
	quiet    bool
	logger   log.Logger
}

// watchScan rescans changed binaries until ctx is cancelled.
func watchScan(ctx context.Context, t watchTarget, progress *CLIProgressReporter) error {
	discovery, err := seeker.NewFileDiscovery(t.rootDir, t.masks, seeker.DiscoveryOptions{
		Ignore:         t.cfg.Scan.Ignore,
		FollowSymlinks: t.cfg.Scan.FollowSymlinks,
		Logger:         t.logger,
	})
	if err != nil {
		return err
	}

	w, err := watcher.NewFileWatcher(discovery.Root(), discovery, t.logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if !t.quiet && !t.asJSON {
		fmt.Fprintf(t.out, "Watching %s for changes (Ctrl+C to stop)...\n", t.rootDir)
	}

	err = w.Start(ctx, func(changes watcher.Changes) {
		if err := rescan(ctx, t, progress, changes); err != nil {
			level.Error(t.logger).Log("msg", "incremental rescan failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	<-ctx.Done()
	return w.Stop()
}

func rescan(ctx context.Context, t watchTarget, progress *CLIProgressReporter, changes watcher.Changes) error {
	startedAt := time.Now()
	files := changes.Updated
	if t.detector != nil && len(files) > 0 {
		cs, err := t.detector.DetectChanges(ctx, files)
		if err != nil {
			return err
		}
		files = cs.Pending()
	}
	results := t.seeker.ScanFiles(ctx, files, t.handler)
	if progress.Interrupted() {
		return nil
	}

	if len(results) > 0 {
		if err := printResults(t.out, results, progress, t.asJSON, t.quiet); err != nil {
			return err
		}
	}

	if t.writer == nil {
		return nil
	}
	// Files that no longer parse lose their stale rows too.
	stale := slices.Concat(changes.Removed, progress.RejectedPaths())
	if err := t.writer.DeleteBinaries(stale); err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}
	_, err := t.writer.WriteScan(storage.ScanRecord{
		Root:       t.rootDir,
		Masks:      t.masks,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}, results)
	return err
}

// openCatalogReader opens the saved catalog of rootDir for reading.
func openCatalogReader(cfg *config.Config, rootDir string) (*sql.DB, *storage.CatalogReader, error) {
	db, err := storage.OpenCatalog(cfg.DatabasePath(rootDir), true)
	if err != nil {
		return nil, nil, err
	}
	return db, storage.NewCatalogReader(db), nil
}
