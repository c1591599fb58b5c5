// Package audit checks document metadata completeness and plausibility,
// producing per-file issue codes and corpus-wide counters.
package audit

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/medparse/medrec/internal/document"
)

// Issue codes, one per detectable defect.
const (
	IssueTitleMissing     = "META_TITLE_MISSING"
	IssueYearMissing      = "META_YEAR_MISSING"
	IssueYearFormat       = "YEAR_FORMAT_INVALID"
	IssueDOIMissing       = "META_DOI_MISSING"
	IssueJournalMissing   = "META_JOURNAL_MISSING"
	IssueAbstractMissing  = "ABSTRACT_MISSING"
	IssueAuthorsMissing   = "AUTHORS_MISSING"
	IssueAuthorsEmpty     = "AUTHORS_EMPTY"
	IssueAuthorsAckLike   = "AUTHORS_ACK_LIKE"
	IssueAuthorsGroupOnly = "AUTHORS_GROUP_ONLY"
)

// ackTokens flag author entries that are really acknowledgement-section
// fragments the extractor mistook for names.
var ackTokens = []string{
	"author contributions",
	"contribution",
	"guarantor",
	"ethics",
	"conflict of interest",
	"acknowledg",
	"funding",
	"data availability",
	"investigator list",
	"supplementary",
}

// yearRe accepts an ISO date prefix: YYYY, YYYY-MM, or YYYY-MM-DD.
var yearRe = regexp.MustCompile(`^\d{4}(-(0[1-9]|1[0-2]))?(-(0[1-9]|[12]\d|3[01]))?$`)

// ValidYear reports whether a year string is an acceptable ISO prefix.
func ValidYear(s string) bool {
	return yearRe.MatchString(strings.TrimSpace(s))
}

// Summary aggregates counters across an audited corpus. Counter names
// are stable; downstream gates key on them.
type Summary struct {
	TotalFiles            int `json:"total_files"`
	JSONErrors            int `json:"json_errors"`
	MissingMetadata       int `json:"missing_metadata"`
	MissingTitle          int `json:"missing_title"`
	MissingYear           int `json:"missing_year"`
	InvalidYearFormat     int `json:"invalid_year_format"`
	MissingAuthors        int `json:"missing_authors"`
	EmptyAuthors          int `json:"empty_authors"`
	AuthorsAckLike        int `json:"authors_ack_like"`
	MissingDOI            int `json:"missing_doi"`
	MissingJournal        int `json:"missing_journal"`
	MissingAbstract       int `json:"missing_abstract"`
	HasReferencesText     int `json:"has_references_text"`
	HasReferencesStruct   int `json:"has_references_struct"`
	EmptyReferencesStruct int `json:"empty_references_struct"`
}

// Row is one file's audit outcome for the issues report.
type Row struct {
	File   string
	Issues []string
	Error  string
}

// Auditor accumulates a summary and per-file rows over one corpus scan.
type Auditor struct {
	Summary Summary
	Rows    []Row
}

// RecordError counts a file that could not be audited. Kind is either
// "json_error" or "missing_metadata".
func (a *Auditor) RecordError(file, kind string) {
	a.Summary.TotalFiles++
	switch kind {
	case "json_error":
		a.Summary.JSONErrors++
	case "missing_metadata":
		a.Summary.MissingMetadata++
	}
	a.Rows = append(a.Rows, Row{File: file, Error: kind})
}

// Record audits one parsed document, updating counters and appending an
// issues row.
func (a *Auditor) Record(file string, d *document.Document) {
	if !d.HasMetadata() {
		a.RecordError(file, "missing_metadata")
		return
	}
	a.Summary.TotalFiles++

	issues := Check(d)
	for _, issue := range issues {
		switch issue {
		case IssueTitleMissing:
			a.Summary.MissingTitle++
		case IssueYearMissing:
			a.Summary.MissingYear++
		case IssueYearFormat:
			a.Summary.InvalidYearFormat++
		case IssueDOIMissing:
			a.Summary.MissingDOI++
		case IssueJournalMissing:
			a.Summary.MissingJournal++
		case IssueAbstractMissing:
			a.Summary.MissingAbstract++
		case IssueAuthorsMissing:
			a.Summary.MissingAuthors++
		case IssueAuthorsEmpty:
			a.Summary.EmptyAuthors++
		case IssueAuthorsAckLike:
			a.Summary.AuthorsAckLike++
		}
	}

	md := &d.Metadata
	if md.HasExtra("references_text") {
		a.Summary.HasReferencesText++
	}
	if raw := md.ExtraRaw("references_struct"); raw != nil {
		a.Summary.HasReferencesStruct++
		if bytes.Equal(bytes.TrimSpace(raw), []byte("[]")) {
			a.Summary.EmptyReferencesStruct++
		}
	}

	a.Rows = append(a.Rows, Row{File: file, Issues: issues})
}

// Check returns the issue codes for one document's metadata, in a fixed
// order so reports diff cleanly between runs.
func Check(d *document.Document) []string {
	md := &d.Metadata
	var issues []string

	if strings.TrimSpace(md.Title) == "" {
		issues = append(issues, IssueTitleMissing)
	}

	switch year := md.Year(); {
	case year == "":
		issues = append(issues, IssueYearMissing)
	case !ValidYear(year):
		issues = append(issues, IssueYearFormat)
	}

	if strings.TrimSpace(md.DOI) == "" {
		issues = append(issues, IssueDOIMissing)
	}

	// older extraction runs used alternate key names
	journal := md.Journal
	if journal == "" {
		journal = md.ExtraString("journal_name")
	}
	if journal == "" {
		journal = md.ExtraString("venue")
	}
	if strings.TrimSpace(journal) == "" {
		issues = append(issues, IssueJournalMissing)
	}

	abstract := md.Abstract
	if abstract == "" {
		abstract = md.ExtraString("abstract_text")
	}
	if strings.TrimSpace(abstract) == "" {
		issues = append(issues, IssueAbstractMissing)
	}

	issues = append(issues, authorIssues(md.Authors)...)
	return issues
}

func authorIssues(authors []document.Author) []string {
	if authors == nil {
		return []string{IssueAuthorsMissing}
	}

	var issues []string
	names := make([]string, 0, len(authors))
	groups := 0
	for _, a := range authors {
		if a.Group {
			groups++
		}
		if name := strings.TrimSpace(a.DisplayName()); name != "" {
			names = append(names, name)
		}
	}

	if len(names) == 0 {
		return []string{IssueAuthorsEmpty}
	}
	if ackLike(names) {
		issues = append(issues, IssueAuthorsAckLike)
	}
	if groups == len(authors) {
		issues = append(issues, IssueAuthorsGroupOnly)
	}
	return issues
}

func ackLike(names []string) bool {
	for _, name := range names {
		low := strings.ToLower(name)
		for _, tok := range ackTokens {
			if strings.Contains(low, tok) {
				return true
			}
		}
	}
	return false
}
