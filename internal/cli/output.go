package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/mvp-joe/symseek/internal/symbol"
)

// symbolView is the JSON shape of one symbol.
type symbolView struct {
	Mangled   string   `json:"mangled_name"`
	Demangled string   `json:"demangled_name"`
	Kind      string   `json:"kind"`
	Access    string   `json:"access"`
	Modifiers []string `json:"modifiers,omitempty"`
	Direction string   `json:"direction"`
	Library   string   `json:"library,omitempty"`
}

type binaryView struct {
	Path    string       `json:"path"`
	Symbols []symbolView `json:"symbols"`
}

func direction(s symbol.Symbol) string {
	if s.Implements {
		return "export"
	}
	return "import"
}

func newSymbolView(s symbol.Symbol) symbolView {
	v := symbolView{
		Mangled:   s.MangledName,
		Demangled: s.DemangledName,
		Kind:      s.Kind.String(),
		Access:    s.Access.String(),
		Direction: direction(s),
		Library:   s.Library,
	}
	if s.Modifiers != 0 {
		v.Modifiers = strings.Split(s.Modifiers.String(), ",")
	}
	return v
}

func newBinaryViews(results []symbol.SymbolsInBinary) []binaryView {
	views := make([]binaryView, 0, len(results))
	for _, r := range results {
		bv := binaryView{Path: r.BinaryPath, Symbols: make([]symbolView, 0, len(r.Symbols))}
		for _, s := range r.Symbols {
			bv.Symbols = append(bv.Symbols, newSymbolView(s))
		}
		views = append(views, bv)
	}
	return views
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeSymbolTable prints one row per symbol, grouped by binary.
func writeSymbolTable(w io.Writer, results []symbol.SymbolsInBinary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Binary", "Dir", "Kind", "Access", "Modifiers", "Name", "Library"})
	table.SetAutoWrapText(false)
	table.SetAutoMergeCells(true)
	for _, r := range results {
		for _, s := range r.Symbols {
			table.Append([]string{
				r.BinaryPath,
				direction(s),
				s.Kind.String(),
				s.Access.String(),
				s.Modifiers.String(),
				s.DemangledName,
				s.Library,
			})
		}
	}
	table.Render()
}

// countSymbols returns the total number of symbols in results.
func countSymbols(results []symbol.SymbolsInBinary) int {
	n := 0
	for _, r := range results {
		n += len(r.Symbols)
	}
	return n
}

// writeScanSummary prints the human-facing line closing a scan.
func writeScanSummary(w io.Writer, results []symbol.SymbolsInBinary, progress *CLIProgressReporter) {
	mark := "✓"
	if progress.Interrupted() {
		mark = "!"
	}
	fmt.Fprintf(w, "%s Scanned %s binaries, %s symbols in %.1fs",
		mark,
		humanize.Comma(int64(len(results))),
		humanize.Comma(int64(countSymbols(results))),
		progress.Elapsed().Seconds())
	if n := progress.Rejected(); n > 0 {
		fmt.Fprintf(w, " (%s files not recognised)", humanize.Comma(int64(n)))
	}
	if progress.Interrupted() {
		fmt.Fprint(w, " - interrupted, results are partial")
	}
	fmt.Fprintln(w)
}
