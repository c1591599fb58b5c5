package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medparse/medrec/internal/dedupe"
	"github.com/medparse/medrec/internal/storage"
)

var (
	dedupeIn     string
	dedupeReport string
	dedupeApply  bool
)

func init() {
	dedupeCmd.Flags().StringVar(&dedupeIn, "in", "out/hardened", "Input directory of document JSONs")
	dedupeCmd.Flags().StringVar(&dedupeReport, "report", "out/reports", "Output directory for reports")
	dedupeCmd.Flags().BoolVar(&dedupeApply, "apply", false, "Delete duplicate files (default: report only)")
	rootCmd.AddCommand(dedupeCmd)
}

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Find and remove documents sharing a DOI",
	Long: `Group documents by normalized DOI and keep one file per group: the
lexicographically first path. Without --apply nothing is deleted.

Examples:
  medrec dedupe                 # report duplicates only
  medrec dedupe --apply         # delete the losing files`,
	RunE: runDedupe,
}

func runDedupe(cmd *cobra.Command, args []string) error {
	paths, err := storage.ListDocuments(dedupeIn)
	if err != nil {
		exitWithError(ExitError, "listing documents: %v", err)
	}

	files := make([]dedupe.File, 0, len(paths))
	for _, path := range paths {
		doc, err := storage.ReadDocument(path)
		if err != nil {
			// unreadable files cannot claim a DOI, so they never dedupe
			fmt.Fprintf(os.Stderr, "warning: skipping %s: %v\n", filepath.Base(path), err)
			continue
		}
		files = append(files, dedupe.File{
			Path: path,
			DOI:  doc.Metadata.DOI,
			PDF:  doc.Provenance.OrigPDFFilename,
		})
	}

	report := dedupe.Plan(files)

	if dedupeApply {
		for _, d := range report.Duplicates {
			if err := os.Remove(d.Removed); err != nil {
				exitWithError(ExitError, "removing %s: %v", d.Removed, err)
			}
		}
	}

	if err := writeDedupeReports(report); err != nil {
		exitWithError(ExitError, "writing report: %v", err)
	}

	if humanOutput {
		verb := "would remove"
		if dedupeApply {
			verb = "removed"
		}
		fmt.Printf("Scanned %d documents (%d with DOI): %d duplicate groups, %s %d files\n",
			report.Scanned, report.WithDOI, report.DuplicateGroups, verb, report.Removed)
		for _, d := range report.Duplicates {
			fmt.Printf("  %s\n    keep:   %s\n    remove: %s\n", d.DOI, d.Kept, d.Removed)
		}
	} else {
		outputJSON(report)
	}
	return nil
}

// writeDedupeReports emits the per-group duplicates CSV, the removal
// detail CSV when files were deleted, and the JSON summary.
func writeDedupeReports(report *dedupe.Report) error {
	type group struct {
		files []string
	}
	groups := make(map[string]*group)
	order := make([]string, 0)
	for _, d := range report.Duplicates {
		g, ok := groups[d.DOI]
		if !ok {
			g = &group{files: []string{d.Kept}}
			groups[d.DOI] = g
			order = append(order, d.DOI)
		}
		g.files = append(g.files, d.Removed)
	}
	groupRows := make([][]string, 0, len(order))
	for _, doi := range order {
		g := groups[doi]
		groupRows = append(groupRows, []string{doi, strconv.Itoa(len(g.files)), strings.Join(g.files, ";")})
	}
	header := []string{"doi", "count", "files"}
	if err := storage.WriteCSVReport(filepath.Join(dedupeReport, "duplicates_by_doi.csv"), header, groupRows); err != nil {
		return err
	}

	if dedupeApply {
		detailRows := make([][]string, 0, len(report.Duplicates))
		for _, d := range report.Duplicates {
			detailRows = append(detailRows, []string{d.DOI, d.Kept, d.Removed, d.KeptPDF, d.RemovedPDF})
		}
		detailHeader := []string{"doi", "kept_file", "removed_file", "kept_pdf", "removed_pdf"}
		if err := storage.WriteCSVReport(filepath.Join(dedupeReport, "duplicates_removed.csv"), detailHeader, detailRows); err != nil {
			return err
		}
	}

	return storage.WriteJSONReport(filepath.Join(dedupeReport, "dedupe_report.json"), report)
}
