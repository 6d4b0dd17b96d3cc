// Package cmd implements the gofactory command line.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "gofactory",
	Short:   "Hierarchical service factory with cascading disposal",
	Long:    `gofactory hosts applications built from a tree of service factories. Every node owns its own container of lazily built singletons, and disposing a node releases everything built below it exactly once.`,
	Version: version,
	// Errors are reported by Execute.
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
