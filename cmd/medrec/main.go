// Package main provides the medrec CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/medparse/medrec/internal/config"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

func main() {
	config.LoadEnv()
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "medrec",
	Short: "Bibliographic metadata reconciliation for extracted documents",
	Long: `medrec reconciles extracted article JSON with citation-manager
exports and external registries.

Core features:
  - Match documents to candidate records (override, DOI, title, author+year)
  - Merge candidate fields under a conservative policy with provenance patches
  - Enrich missing DOIs and journals from Crossref
  - Deduplicate the corpus by DOI
  - Audit metadata quality and gate CI on the results

Every change is recorded as a provenance patch, so documents stay
auditable across runs. All commands output JSON by default.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.Version = Version
}
