package cli

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/symseek/internal/search"
	"github.com/mvp-joe/symseek/internal/storage"
)

type searchOptions struct {
	dir     string
	limit   int
	binary  string
	kind    string
	access  string
	exports bool
	imports bool
	json    bool
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the saved catalog by symbol name",
		Long: `Search runs a keyword query over the symbols saved by 'symseek scan --save'.

The query uses the bleve query string syntax: plain words match demangled
name tokens, and fields such as kind:method or direction:import narrow it.

Examples:
  symseek search Render
  symseek search 'CreateWindow*' --binary '*/user32.dll'
  symseek search operator --kind method --access private
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, g, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&opts.dir, "dir", "d", ".", "project directory holding the catalog")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "maximum number of results")
	cmd.Flags().StringVar(&opts.binary, "binary", "", "wildcard over the binary path")
	cmd.Flags().StringVar(&opts.kind, "kind", "", "function, method or variable")
	cmd.Flags().StringVar(&opts.access, "access", "", "public, protected or private")
	cmd.Flags().BoolVar(&opts.exports, "exports", false, "only exported symbols")
	cmd.Flags().BoolVar(&opts.imports, "imports", false, "only imported symbols")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print JSON instead of a table")
	cmd.MarkFlagsMutuallyExclusive("exports", "imports")

	return cmd
}

func runSearch(cmd *cobra.Command, g *globalOptions, opts *searchOptions, query string) error {
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

	symbols, err := reader.Symbols(storage.SymbolQuery{})
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}

	searcher, err := search.NewSearcher(cmd.Context(), symbols)
	if err != nil {
		return err
	}
	defer searcher.Close()

	so := &search.Options{
		Limit:  opts.limit,
		Binary: opts.binary,
		Kind:   opts.kind,
		Access: opts.access,
	}
	switch {
	case opts.exports:
		so.Direction = "export"
	case opts.imports:
		so.Direction = "import"
	}

	results, err := searcher.Search(cmd.Context(), query, so)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.json || cfg.Output.Format == "json" {
		return writeJSON(out, results)
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Score", "Binary", "Dir", "Kind", "Access", "Name"})
	table.SetAutoWrapText(false)
	for _, r := range results {
		table.Append([]string{
			fmt.Sprintf("%.3f", r.Score),
			r.BinaryPath,
			r.Direction,
			r.Kind,
			r.Access,
			r.DemangledName,
		})
	}
	table.Render()
	fmt.Fprintf(out, "%s of %s symbols matched\n",
		humanize.Comma(int64(len(results))), humanize.Comma(int64(len(symbols))))
	return nil
}
