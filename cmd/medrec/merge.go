package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/medparse/medrec/internal/candidate"
	"github.com/medparse/medrec/internal/config"
	"github.com/medparse/medrec/internal/match"
	"github.com/medparse/medrec/internal/merge"
	"github.com/medparse/medrec/internal/normalize"
	"github.com/medparse/medrec/internal/storage"
)

// strictUnmatchedRatio is the fraction of unmatched documents strict
// mode tolerates before failing the run.
const strictUnmatchedRatio = 0.05

var (
	mergeIn         string
	mergeCandidates string
	mergeCatalog    string
	mergeOut        string
	mergeReport     string
	mergeOverrides  string
	mergeDryRun     bool
	mergeStrict     bool
	mergeMinFuzzy   float64
	mergeWorkers    int
)

func init() {
	mergeCmd.Flags().StringVar(&mergeIn, "in", "out/hardened", "Input directory of document JSONs")
	mergeCmd.Flags().StringVar(&mergeCandidates, "candidates", "", "CSL-JSON candidate export (required)")
	mergeCmd.Flags().StringVar(&mergeCatalog, "catalog", "", "Tabular export CSV with keys and attachments")
	mergeCmd.Flags().StringVar(&mergeOut, "out", "", "Output directory (defaults to --in)")
	mergeCmd.Flags().StringVar(&mergeReport, "report", "out/reports", "Output directory for reports")
	mergeCmd.Flags().StringVar(&mergeOverrides, "overrides", "", "Manual overrides JSON")
	mergeCmd.Flags().BoolVar(&mergeDryRun, "dry-run", false, "Report changes only; do not write files")
	mergeCmd.Flags().BoolVar(&mergeStrict, "strict", false, "Fail on high unmatched ratio or DOI conflicts")
	mergeCmd.Flags().Float64Var(&mergeMinFuzzy, "min-fuzzy", 0, "Fuzzy title match floor (default from config, then 0.85)")
	mergeCmd.Flags().IntVar(&mergeWorkers, "workers", 0, "Parallel workers (default: number of CPUs)")
	mergeCmd.MarkFlagRequired("candidates")
	rootCmd.AddCommand(mergeCmd)
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Match documents to candidate records and merge their metadata",
	Long: `Match each document against the candidate export and merge matched
fields under the conservative policy, recording provenance patches.

Examples:
  medrec merge --candidates export.json --catalog export.csv --dry-run
  medrec merge --candidates export.json --strict --report out/reports_ci`,
	RunE: runMerge,
}

// mergeRow is one document's outcome in the merge report.
type mergeRow struct {
	File       string  `json:"file"`
	Status     string  `json:"status"`
	Candidate  string  `json:"candidate,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Changed    string  `json:"changed_fields,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// mergeSummary aggregates the run for the summary report.
type mergeSummary struct {
	Total             int     `json:"total"`
	MatchedDOI        int     `json:"matched_doi"`
	MatchedTitleExact int     `json:"matched_title_exact"`
	MatchedTitleFuzzy int     `json:"matched_title_fuzzy"`
	MatchedAuthorYear int     `json:"matched_author_year"`
	MatchedOverride   int     `json:"matched_override"`
	ManualFields      int     `json:"manual_fields"`
	Unmatched         int     `json:"unmatched"`
	UnmatchedRatio    float64 `json:"unmatched_ratio"`
	DOIConflicts      int     `json:"doi_conflicts"`
	Changed           int     `json:"changed"`
	Errors            int     `json:"errors"`
	DryRun            bool    `json:"dry_run"`
}

func runMerge(cmd *cobra.Command, args []string) error {
	records, err := candidate.LoadCSL(mergeCandidates)
	if err != nil {
		exitWithError(ExitError, "loading candidates: %v", err)
	}
	index, warnings := candidate.Build(records)
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	var catalog candidate.Catalog
	if mergeCatalog != "" {
		catalog, err = candidate.LoadCatalog(mergeCatalog)
		if err != nil {
			exitWithError(ExitError, "loading catalog: %v", err)
		}
	}

	var overrides *match.Overrides
	if mergeOverrides != "" {
		overrides, err = match.LoadOverrides(mergeOverrides)
		if err != nil {
			exitWithError(ExitError, "loading overrides: %v", err)
		}
	}

	minFuzzy := mergeMinFuzzy
	if minFuzzy == 0 {
		minFuzzy = config.GetMinFuzzy()
	}
	if minFuzzy == 0 {
		minFuzzy = match.DefaultMinFuzzy
	}
	matcher := &match.Matcher{Index: index, Overrides: overrides, MinFuzzy: minFuzzy}

	paths, err := storage.ListDocuments(mergeIn)
	if err != nil {
		exitWithError(ExitError, "listing documents: %v", err)
	}

	outDir := mergeOut
	if outDir == "" {
		outDir = mergeIn
	}

	workers := mergeWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	// The index, catalog, and overrides are read-only from here on; each
	// document is independent, so rows land in per-index slots and no
	// locking is needed.
	rows := make([]mergeRow, len(paths))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rows[i] = mergeOne(paths[i], outDir, matcher, catalog)
			}
		}()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	summary := summarize(rows)
	if err := writeMergeReports(rows, summary); err != nil {
		exitWithError(ExitError, "writing reports: %v", err)
	}

	if humanOutput {
		fmt.Printf("Merge complete: %d documents, %d unmatched (%.1f%%), %d conflicts, %d errors\n",
			summary.Total, summary.Unmatched, summary.UnmatchedRatio*100, summary.DOIConflicts, summary.Errors)
	} else {
		outputJSON(summary)
	}

	if mergeStrict {
		if summary.UnmatchedRatio > strictUnmatchedRatio {
			fmt.Fprintf(os.Stderr, "strict: unmatched ratio %.3f exceeds %.2f\n", summary.UnmatchedRatio, strictUnmatchedRatio)
			os.Exit(ExitStrictUnmatched)
		}
		if summary.DOIConflicts > 0 {
			fmt.Fprintf(os.Stderr, "strict: %d DOI conflicts\n", summary.DOIConflicts)
			os.Exit(ExitStrictConflicts)
		}
	}
	return nil
}

// mergeOne processes a single document: cascade match, field merge, and
// manual overrides, writing the result unless this is a dry run.
func mergeOne(path, outDir string, matcher *match.Matcher, catalog candidate.Catalog) mergeRow {
	filename := filepath.Base(path)
	row := mergeRow{File: filename}

	doc, err := storage.ReadDocument(path)
	if err != nil {
		row.Status = "error"
		row.Error = err.Error()
		return row
	}

	md := &doc.Metadata
	query := match.Query{
		Filename:        filename,
		Title:           md.Title,
		TitleNorm:       normalize.Text(md.Title),
		DOI:             normalize.DOI(md.DOI),
		Year:            documentYear(md.Year(), md.YearNorm),
		FirstAuthorLast: md.FirstAuthorLast(),
	}
	res := matcher.Match(query)

	var changed []string
	var conflict bool
	if res.Matched() {
		var info *candidate.CatalogInfo
		if catalog != nil {
			if ci, ok := catalog.FindForRecord(res.Candidate); ok {
				info = &ci
			}
		}
		outcome := merge.Apply(doc, res.Candidate, info, res.Method, res.Confidence)
		changed = outcome.Changed
		conflict = outcome.Conflict
		row.Status = res.Method
		row.Candidate = res.Candidate.ID
		row.Confidence = res.Confidence
		if conflict {
			row.Status = res.Method + ",doi_conflict"
		}
	} else {
		row.Status = "unmatched"
	}

	// literal field pins apply whether or not the cascade hit
	if entry, ok := matcher.Overrides.ForFilename(filename); ok && len(entry.Fields) > 0 {
		changed = append(changed, merge.ApplyManual(doc, entry.Fields, "filename override")...)
	}
	if !res.Matched() {
		if fields, ok := matcher.Overrides.FieldsForTitle(query.TitleNorm, md.Title); ok {
			applied := merge.ApplyManual(doc, fields, "title override")
			if len(applied) > 0 {
				row.Status = "manual_fields"
				changed = append(changed, applied...)
			}
		}
	}

	row.Changed = strings.Join(changed, ";")

	// A conflicted document must not be written in strict mode; documents
	// without changes still pass through when writing to a separate
	// output directory, so the merged corpus stays complete.
	blocked := mergeStrict && conflict
	needsWrite := len(changed) > 0 || outDir != mergeIn
	if needsWrite && !blocked && !mergeDryRun {
		if err := storage.WriteDocument(filepath.Join(outDir, filename), doc); err != nil {
			row.Status = "error"
			row.Error = err.Error()
		}
	}
	return row
}

func summarize(rows []mergeRow) mergeSummary {
	s := mergeSummary{Total: len(rows), DryRun: mergeDryRun}
	for _, row := range rows {
		if row.Changed != "" {
			s.Changed++
		}
		if strings.HasSuffix(row.Status, ",doi_conflict") {
			s.DOIConflicts++
		}
		switch strings.TrimSuffix(row.Status, ",doi_conflict") {
		case match.MethodDOI:
			s.MatchedDOI++
		case match.MethodTitleExact:
			s.MatchedTitleExact++
		case match.MethodTitleFuzzy:
			s.MatchedTitleFuzzy++
		case match.MethodAuthorYear:
			s.MatchedAuthorYear++
		case match.MethodOverrideDOI, match.MethodOverrideKey:
			s.MatchedOverride++
		case "manual_fields":
			s.ManualFields++
		case "error":
			s.Errors++
		case "unmatched":
			s.Unmatched++
		}
	}
	if s.Total > 0 {
		// documents salvaged only by title-keyed field overrides never
		// matched a candidate, so they still count toward the ratio
		s.UnmatchedRatio = float64(s.Unmatched+s.ManualFields) / float64(s.Total)
	}
	return s
}

func writeMergeReports(rows []mergeRow, summary mergeSummary) error {
	csvRows := make([][]string, 0, len(rows))
	for _, r := range rows {
		conf := ""
		if r.Confidence != 0 {
			conf = strconv.FormatFloat(r.Confidence, 'f', -1, 64)
		}
		csvRows = append(csvRows, []string{r.File, r.Status, r.Candidate, conf, r.Changed, r.Error})
	}
	header := []string{"file", "status", "candidate", "confidence", "changed_fields", "error"}
	if err := storage.WriteCSVReport(filepath.Join(mergeReport, "merge_report.csv"), header, csvRows); err != nil {
		return err
	}
	return storage.WriteJSONReport(filepath.Join(mergeReport, "merge_summary.json"), summary)
}

// documentYear scans the raw then normalized year string for a
// plausible four-digit year, 0 if neither holds one.
func documentYear(raw, norm string) int {
	for _, s := range []string{raw, norm} {
		if y, ok := normalize.Year(s); ok {
			return y
		}
	}
	return 0
}
