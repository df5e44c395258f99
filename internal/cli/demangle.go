package cli

import (
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/symseek/internal/symbol"
)

func newDemangleCmd(g *globalOptions) *cobra.Command {
	var asJSON, exported bool

	cmd := &cobra.Command{
		Use:   "demangle <name>...",
		Short: "Demangle and classify decorated names",
		Long: `Demangle prints the declaration, kind, access and modifiers SymSeek derives
from each Microsoft or Itanium decorated name. Other names are shown as is.

Examples:
  symseek demangle '?Foo@Bar@@QAEXXZ'
  symseek demangle _ZN3Foo3barEv --json
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rootDir, err := resolveDir("")
			if err != nil {
				return err
			}
			cfg, err := g.loadConfig(rootDir)
			if err != nil {
				return err
			}
			classifier, release, err := newClassifier(cfg)
			if err != nil {
				return err
			}
			defer release()

			symbols := make([]symbol.Symbol, 0, len(args))
			for _, name := range args {
				symbols = append(symbols, classifier.Symbol(symbol.RawSymbol{Name: name, Defined: exported}))
			}

			out := cmd.OutOrStdout()
			if asJSON || cfg.Output.Format == "json" {
				views := make([]symbolView, 0, len(symbols))
				for _, s := range symbols {
					views = append(views, newSymbolView(s))
				}
				return writeJSON(out, views)
			}

			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"Mangled", "Demangled", "Kind", "Access", "Modifiers"})
			table.SetAutoWrapText(false)
			for _, s := range symbols {
				table.Append([]string{s.MangledName, s.DemangledName, s.Kind.String(), s.Access.String(), s.Modifiers.String()})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVar(&exported, "export", true, "classify the names as exports")

	return cmd
}
