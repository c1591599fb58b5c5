// Package dedupe finds documents that resolved to the same DOI and
// decides which copy survives.
package dedupe

import (
	"sort"

	"github.com/medparse/medrec/internal/normalize"
)

// File is one scanned document, reduced to what the planner needs.
type File struct {
	Path string
	DOI  string // raw; normalized during planning
	PDF  string // provenance.orig_pdf_filename, may be blank
}

// Duplicate is one removal decision. Within a DOI group the
// lexicographically first path is kept; every other path gets a row.
type Duplicate struct {
	DOI        string `json:"doi"`
	Kept       string `json:"kept"`
	Removed    string `json:"removed"`
	KeptPDF    string `json:"kept_pdf,omitempty"`
	RemovedPDF string `json:"removed_pdf,omitempty"`
}

// Report is the dedupe outcome: counters plus one row per removal.
type Report struct {
	Scanned         int         `json:"scanned"`
	WithDOI         int         `json:"with_doi"`
	DuplicateGroups int         `json:"duplicate_groups"`
	Removed         int         `json:"removed"`
	Duplicates      []Duplicate `json:"duplicates"`
}

// Plan groups files by normalized DOI and plans removals. Files without
// a DOI are never grouped and never removed. The plan is deterministic:
// groups are ordered by DOI and the keeper is the lexicographically
// smallest path, independent of input order.
func Plan(files []File) *Report {
	report := &Report{Scanned: len(files)}

	groups := make(map[string][]File)
	for _, f := range files {
		doi := normalize.DOI(f.DOI)
		if doi == "" {
			continue
		}
		report.WithDOI++
		groups[doi] = append(groups[doi], f)
	}

	dois := make([]string, 0, len(groups))
	for doi, group := range groups {
		if len(group) > 1 {
			dois = append(dois, doi)
		}
	}
	sort.Strings(dois)

	for _, doi := range dois {
		group := groups[doi]
		sort.Slice(group, func(i, j int) bool { return group[i].Path < group[j].Path })

		report.DuplicateGroups++
		keep := group[0]
		for _, f := range group[1:] {
			report.Duplicates = append(report.Duplicates, Duplicate{
				DOI:        doi,
				Kept:       keep.Path,
				Removed:    f.Path,
				KeptPDF:    keep.PDF,
				RemovedPDF: f.PDF,
			})
			report.Removed++
		}
	}
	return report
}
