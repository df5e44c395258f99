package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/symseek/internal/graph"
	"github.com/mvp-joe/symseek/internal/storage"
	"github.com/mvp-joe/symseek/internal/symbol"
)

type depsOptions struct {
	dir     string
	binary  string
	depth   int
	reverse bool
	json    bool
}

// depsReport is the JSON shape of the deps command.
type depsReport struct {
	Target       string             `json:"target,omitempty"`
	Dependencies []graph.Dependency `json:"dependencies,omitempty"`
	LoadOrder    []string           `json:"load_order,omitempty"`
	Cycles       [][]string         `json:"cycles,omitempty"`
}

func newDepsCmd(g *globalOptions) *cobra.Command {
	opts := &depsOptions{}

	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Show the import dependency graph of the saved catalog",
		Long: `Deps links every saved binary to the libraries it imports from. Imports of
a library that was itself scanned point at that binary.

Without --binary it prints a load order (libraries before their importers)
and any import cycles.

Examples:
  symseek deps
  symseek deps --binary app.exe --depth 3
  symseek deps --binary kernel32.dll --reverse
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeps(cmd, g, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dir, "dir", "d", ".", "project directory holding the catalog")
	cmd.Flags().StringVar(&opts.binary, "binary", "", "binary path or library name to query")
	cmd.Flags().IntVar(&opts.depth, "depth", 1, "levels of transitive dependencies")
	cmd.Flags().BoolVar(&opts.reverse, "reverse", false, "list what depends on --binary instead")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print JSON instead of a table")

	return cmd
}

func runDeps(cmd *cobra.Command, g *globalOptions, opts *depsOptions) error {
	rootDir, err := resolveDir(opts.dir)
	if err != nil {
		return err
	}
	cfg, err := g.loadConfig(rootDir)
	if err != nil {
		return err
	}

	db, reader, err := openCatalogReader(cfg, rootDir)
	if err != nil {
		return err
	}
	defer db.Close()

	// Only imports form edges.
	imports := false
	results, err := reader.Results(storage.SymbolQuery{Implements: &imports})
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}

	// Binaries without imports are still nodes.
	binaries, err := reader.Binaries()
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}
	results = withAllBinaries(results, binaries)

	dg, err := graph.Build(results)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	asJSON := opts.json || cfg.Output.Format == "json"

	if opts.binary != "" {
		var deps []graph.Dependency
		if opts.reverse {
			deps, err = dg.Dependents(opts.binary, opts.depth)
		} else {
			deps, err = dg.Dependencies(opts.binary, opts.depth)
		}
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(out, depsReport{Target: opts.binary, Dependencies: deps})
		}
		writeDependencyTable(out, deps)
		return nil
	}

	cycles, err := dg.Cycles()
	if err != nil {
		return err
	}
	var order []string
	if len(cycles) == 0 {
		if order, err = dg.LoadOrder(); err != nil {
			return err
		}
	}

	if asJSON {
		return writeJSON(out, depsReport{LoadOrder: order, Cycles: cycles})
	}

	if len(order) > 0 {
		fmt.Fprintf(out, "Load order (%s nodes):\n", humanize.Comma(int64(len(order))))
		for i, id := range order {
			fmt.Fprintf(out, "  %3d. %s\n", i+1, id)
		}
	}
	for _, c := range cycles {
		fmt.Fprintf(out, "Cycle: %s\n", strings.Join(c, " <-> "))
	}
	return nil
}

// withAllBinaries adds an empty entry for every catalog binary missing from
// results.
func withAllBinaries(results []symbol.SymbolsInBinary, binaries []storage.BinaryRecord) []symbol.SymbolsInBinary {
	present := make(map[string]bool, len(results))
	for _, r := range results {
		present[r.BinaryPath] = true
	}
	for _, b := range binaries {
		if !present[b.BinaryPath] {
			results = append(results, symbol.SymbolsInBinary{BinaryPath: b.BinaryPath})
		}
	}
	return results
}

func writeDependencyTable(w io.Writer, deps []graph.Dependency) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Depth", "Kind", "Name", "Path", "Symbols"})
	table.SetAutoWrapText(false)
	for _, d := range deps {
		symbols := ""
		if d.Symbols > 0 {
			symbols = humanize.Comma(int64(d.Symbols))
		}
		table.Append([]string{
			fmt.Sprint(d.Depth),
			string(d.Node.Kind),
			d.Node.Name,
			d.Node.Path,
			symbols,
		})
	}
	table.Render()
}
