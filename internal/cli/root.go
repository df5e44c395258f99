package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mvp-joe/symseek/internal/config"
)

// globalOptions carries the persistent flags shared by every subcommand.
// Flags are bound through a per-tree viper instance so tests can build
// independent command trees.
type globalOptions struct {
	v *viper.Viper
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	g := &globalOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "symseek",
		Short: "SymSeek - find symbols in compiled binaries",
		Long: `SymSeek walks a directory tree, recognises PE, COFF, archive and ELF
binaries, and lists their exported and imported symbols with demangled
names, kinds, access levels and modifiers.

Results can be filtered, saved to a local catalog, searched and turned into
an import dependency graph.`,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().String("config", "", "config file (default is <dir>/.symseek/config.yml)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (debug logging)")
	cmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error (overrides log.level)")

	// Bind flags to viper
	g.v.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))
	g.v.BindPFlag("verbose", cmd.PersistentFlags().Lookup("verbose"))
	g.v.BindPFlag("log-level", cmd.PersistentFlags().Lookup("log-level"))

	cmd.AddCommand(
		newScanCmd(g),
		newSearchCmd(g),
		newDemangleCmd(g),
		newDepsCmd(g),
		newVersionCmd(),
	)
	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration for rootDir, or the file given with
// --config.
func (g *globalOptions) loadConfig(rootDir string) (*config.Config, error) {
	loader := config.NewLoader(rootDir)
	if file := g.v.GetString("config"); file != "" {
		loader = config.NewFileLoader(rootDir, file)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// logger builds the logfmt logger for a command. --verbose wins over
// --log-level, which wins over log.level.
func (g *globalOptions) logger(w io.Writer, cfg *config.Config) log.Logger {
	lvl := cfg.Log.Level
	if l := g.v.GetString("log-level"); l != "" {
		lvl = l
	}
	if g.v.GetBool("verbose") {
		lvl = "debug"
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, levelFilter(strings.ToLower(lvl)))
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

func levelFilter(l string) level.Option {
	switch l {
	case "debug":
		return level.AllowDebug()
	case "info":
		return level.AllowInfo()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowWarn()
	}
}

// resolveDir turns a directory argument into an absolute path, defaulting
// to the working directory.
func resolveDir(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve directory: %w", err)
	}
	return abs, nil
}
