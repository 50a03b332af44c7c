package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	storePath  string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "confix",
		Short: "Confix - Build Environment Resolver",
		Long: `Confix resolves build environments incrementally: it takes a CUE manifest
naming the components, libraries, and programs a build needs, searches a
provider catalog for candidates, and backtracks through alternative
assignments until every request's checks pass against one environment.

Features:
  - Typed manifests via CUE
  - Light procedural scripting via Starlark
  - YAML-defined provider catalogs with toolchain bundles
  - Link probes that inspect ELF/PE artifacts
  - Policy gate (OPA/rego) over the finalized environment
  - SQLite-backed resolution history`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&storePath, "store", "s", "", "history database path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newProvidersCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
