package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medparse/medrec/internal/audit"
	"github.com/medparse/medrec/internal/storage"
)

var (
	auditOut   string
	auditLimit int
)

func init() {
	auditCmd.Flags().StringVar(&auditOut, "out", "out/reports", "Output directory for reports")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 0, "Limit number of files for quick runs")
	rootCmd.AddCommand(auditCmd)
}

var auditCmd = &cobra.Command{
	Use:   "audit [input-dir]",
	Short: "Audit document metadata quality",
	Long: `Check every document for missing or implausible metadata, writing
per-file issue codes and a counter summary that the gate command reads.

Examples:
  medrec audit out/hardened
  medrec audit out/hardened --out out/reports_ci`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	inDir := "out/hardened"
	if len(args) > 0 {
		inDir = args[0]
	}

	paths, err := storage.ListDocuments(inDir)
	if err != nil {
		exitWithError(ExitError, "listing documents: %v", err)
	}
	if auditLimit > 0 && len(paths) > auditLimit {
		paths = paths[:auditLimit]
	}

	var auditor audit.Auditor
	for _, path := range paths {
		filename := filepath.Base(path)
		doc, err := storage.ReadDocument(path)
		if err != nil {
			auditor.RecordError(filename, "json_error")
			continue
		}
		auditor.Record(filename, doc)
	}

	if err := storage.WriteJSONReport(filepath.Join(auditOut, "quality_summary.json"), auditor.Summary); err != nil {
		exitWithError(ExitError, "writing summary: %v", err)
	}
	csvRows := make([][]string, 0, len(auditor.Rows))
	for _, r := range auditor.Rows {
		csvRows = append(csvRows, []string{r.File, strings.Join(r.Issues, ","), r.Error})
	}
	if err := storage.WriteCSVReport(filepath.Join(auditOut, "quality_issues.csv"), []string{"file", "issues", "error"}, csvRows); err != nil {
		exitWithError(ExitError, "writing issues: %v", err)
	}

	if humanOutput {
		s := auditor.Summary
		fmt.Printf("Audited %d files: %d missing DOI, %d missing journal, %d missing year, %d empty authors\n",
			s.TotalFiles, s.MissingDOI, s.MissingJournal, s.MissingYear, s.EmptyAuthors)
	} else {
		outputJSON(auditor.Summary)
	}
	return nil
}
