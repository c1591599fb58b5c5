package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medparse/medrec/internal/cache"
	"github.com/medparse/medrec/internal/config"
	"github.com/medparse/medrec/internal/crossref"
	"github.com/medparse/medrec/internal/storage"
)

var (
	enrichIn     string
	enrichOut    string
	enrichReport string
	enrichEmail  string
	enrichDryRun bool
	enrichLimit  int
	enrichCache  string
	enrichNoCach bool
)

func init() {
	enrichCmd.Flags().StringVar(&enrichIn, "in", "out/hardened", "Input directory of document JSONs")
	enrichCmd.Flags().StringVar(&enrichOut, "out", "", "Output directory (defaults to --in)")
	enrichCmd.Flags().StringVar(&enrichReport, "report", "out/reports", "Output directory for reports")
	enrichCmd.Flags().StringVar(&enrichEmail, "email", "", "Contact email for the Crossref User-Agent")
	enrichCmd.Flags().BoolVar(&enrichDryRun, "dry-run", false, "Report changes only; do not write files")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "Limit number of files for quick runs")
	enrichCmd.Flags().StringVar(&enrichCache, "cache", "", "Lookup cache path (default from config)")
	enrichCmd.Flags().BoolVar(&enrichNoCach, "no-cache", false, "Skip the lookup cache")
	rootCmd.AddCommand(enrichCmd)
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Fill missing DOIs and journals from Crossref",
	Long: `Query Crossref by title for documents still missing a DOI or journal
and merge the best match when it clears the strict acceptance score.

Examples:
  medrec enrich --dry-run
  medrec enrich --email curator@example.org --limit 20`,
	RunE: runEnrich,
}

type enrichRow struct {
	File    string `json:"file"`
	Status  string `json:"status"`
	Changed string `json:"changed_fields,omitempty"`
	Error   string `json:"error,omitempty"`
}

type enrichSummary struct {
	Total     int    `json:"total"`
	Changed   int    `json:"changed"`
	Unchanged int    `json:"unchanged"`
	Errors    int    `json:"errors"`
	Report    string `json:"report"`
	DryRun    bool   `json:"dry_run"`
}

func runEnrich(cmd *cobra.Command, args []string) error {
	opts := []crossref.ClientOption{}
	email := enrichEmail
	if email == "" {
		email = config.GetEmail()
	}
	if email != "" {
		opts = append(opts, crossref.WithEmail(email))
	}
	if !enrichNoCach {
		cachePath := enrichCache
		if cachePath == "" {
			cachePath = config.GetCachePath()
		}
		if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err == nil {
			if cc, err := cache.Open(cachePath); err == nil {
				defer cc.Close()
				opts = append(opts, crossref.WithCache(cc))
			} else {
				fmt.Fprintf(os.Stderr, "warning: lookup cache unavailable: %v\n", err)
			}
		}
	}
	client := crossref.NewClient(opts...)

	paths, err := storage.ListDocuments(enrichIn)
	if err != nil {
		exitWithError(ExitError, "listing documents: %v", err)
	}
	if enrichLimit > 0 && len(paths) > enrichLimit {
		paths = paths[:enrichLimit]
	}

	outDir := enrichOut
	if outDir == "" {
		outDir = enrichIn
	}

	ctx := context.Background()
	summary := enrichSummary{Total: len(paths), DryRun: enrichDryRun}
	rows := make([]enrichRow, 0, len(paths))

	for _, path := range paths {
		filename := filepath.Base(path)
		doc, err := storage.ReadDocument(path)
		if err != nil {
			summary.Errors++
			rows = append(rows, enrichRow{File: filename, Status: "error", Error: err.Error()})
			continue
		}

		if needDOI, needJournal := crossref.Needs(&doc.Metadata); !needDOI && !needJournal {
			summary.Unchanged++
			rows = append(rows, enrichRow{File: filename, Status: "skip_complete"})
			continue
		}

		changed, err := crossref.Enrich(ctx, client, doc)
		if err != nil {
			summary.Errors++
			rows = append(rows, enrichRow{File: filename, Status: "error", Error: err.Error()})
			continue
		}
		if len(changed) == 0 {
			summary.Unchanged++
			rows = append(rows, enrichRow{File: filename, Status: "unchanged"})
			continue
		}

		summary.Changed++
		status := "changed"
		if enrichDryRun {
			status = "dry-run"
		} else if err := storage.WriteDocument(filepath.Join(outDir, filename), doc); err != nil {
			summary.Changed--
			summary.Errors++
			rows = append(rows, enrichRow{File: filename, Status: "error", Error: err.Error()})
			continue
		}
		rows = append(rows, enrichRow{File: filename, Status: status, Changed: strings.Join(changed, ";")})
	}

	reportName := "enrich_online_changes.csv"
	if enrichDryRun {
		reportName = "enrich_online_dryrun.csv"
	}
	reportPath := filepath.Join(enrichReport, reportName)
	summary.Report = reportPath

	csvRows := make([][]string, 0, len(rows))
	for _, r := range rows {
		csvRows = append(csvRows, []string{r.File, r.Status, r.Changed, r.Error})
	}
	if err := storage.WriteCSVReport(reportPath, []string{"file", "status", "changed_fields", "error"}, csvRows); err != nil {
		exitWithError(ExitError, "writing report: %v", err)
	}
	if err := storage.WriteJSONReport(filepath.Join(enrichReport, "enrich_online_summary.json"), summary); err != nil {
		exitWithError(ExitError, "writing summary: %v", err)
	}

	if humanOutput {
		fmt.Printf("Enrichment complete: %d changed, %d unchanged, %d errors\n",
			summary.Changed, summary.Unchanged, summary.Errors)
	} else {
		outputJSON(summary)
	}
	return nil
}
