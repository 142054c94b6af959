// Package main provides the entry point for the fedigraph CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for fedigraph.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fedigraph",
		Short: "Fediverse graph crawler",
		Long: `Fedigraph crawls federated social networks through their public APIs and
extracts the interaction graphs between their instances.

Each run produces a directory of CSV datasets: one node table with per-host
metrics, and one or more edge tables (federation links, aggregated user or
community interactions) restricted to the hosts that answered. robots.txt
is honored strictly: disallowed or rate-restricted hosts are excluded
before any API call is made.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
