// Package merge applies a matched candidate record onto a document's
// metadata under the field policy table, recording one provenance patch
// per changed field.
package merge

import (
	"sort"
	"strconv"

	"github.com/medparse/medrec/internal/candidate"
	"github.com/medparse/medrec/internal/document"
	"github.com/medparse/medrec/internal/normalize"
)

// SourceCSV tags patches whose value came from the tabular export rather
// than the CSL record.
const SourceCSV = "zotero:csv"

// SourceZotero is the patch source tag for candidate-derived values,
// suffixed with the match method.
const SourceZotero = "zotero"

// ZoteroSource is the provenance source label for the candidate system.
const ZoteroSource = "zotero_csl+csv"

// abstractReplaceBelow is the length under which an existing abstract is
// considered a truncated extraction artifact and may be replaced.
const abstractReplaceBelow = 500

// Outcome reports what Apply changed.
type Outcome struct {
	Changed  []string // patch paths, in application order
	Conflict bool     // document and candidate carry different non-blank DOIs
}

// Apply merges a candidate record into the document. Field policy:
// title is replaced when blank or when the candidate title is strictly
// longer; year_norm and authors follow the candidate whenever it has
// them; identifier and citation fields fill blanks only; the abstract is
// replaced when blank or shorter than the truncation threshold. Every
// change appends a patch before the value is written, so re-applying the
// same candidate is a no-op.
func Apply(d *document.Document, rec *candidate.Record, info *candidate.CatalogInfo, method string, confidence float64) Outcome {
	var out Outcome
	md := &d.Metadata
	source := SourceZotero + ":" + method

	set := func(path string, from, to any, assign func()) {
		d.AddPatch(path, from, to, source, confidence)
		assign()
		out.Changed = append(out.Changed, path)
	}

	if rec.Title != "" && rec.Title != md.Title && (md.Title == "" || len(rec.Title) > len(md.Title)) {
		set("metadata.title", patchFrom(md.Title), rec.Title, func() { md.Title = rec.Title })
	}

	if rec.Year != 0 {
		year := strconv.Itoa(rec.Year)
		if md.YearNorm != year {
			set("metadata.year_norm", patchFrom(md.YearNorm), year, func() { md.YearNorm = year })
		}
	}

	if len(rec.Authors) > 0 {
		current := authorDisplays(md.Authors)
		if !equalStrings(current, rec.Authors) {
			set("metadata.authors", anySlice(current), anySlice(rec.Authors), func() {
				md.Authors = plainAuthors(rec.Authors)
			})
		}
	}

	if rec.DOI != "" {
		existing := normalize.DOI(md.DOI)
		switch {
		case existing == "":
			set("metadata.doi", patchFrom(md.DOI), rec.DOI, func() { md.DOI = rec.DOI })
		case existing != rec.DOI:
			out.Conflict = true
		}
	}

	fillBlank := func(path string, dst *string, val string) {
		if val != "" && *dst == "" {
			set(path, nil, val, func() { *dst = val })
		}
	}
	fillBlank("metadata.journal", &md.Journal, rec.ContainerTitle)
	fillBlank("metadata.volume", &md.Volume, rec.Volume)
	fillBlank("metadata.issue", &md.Issue, rec.Issue)
	fillBlank("metadata.pages", &md.Pages, rec.Pages)
	fillBlank("metadata.issn", &md.ISSN, rec.ISSN)
	fillBlank("metadata.url", &md.URL, rec.URL)

	if rec.Abstract != "" && rec.Abstract != md.Abstract && len(md.Abstract) < abstractReplaceBelow {
		set("metadata.abstract", patchFrom(md.Abstract), rec.Abstract, func() { md.Abstract = rec.Abstract })
	}

	if info != nil && len(info.PDFBasenames) > 0 && d.Provenance.OrigPDFFilename == "" {
		pdf := info.PDFBasenames[0]
		d.AddPatch("provenance.orig_pdf_filename", nil, pdf, SourceCSV, confidence)
		d.Provenance.OrigPDFFilename = pdf
		out.Changed = append(out.Changed, "provenance.orig_pdf_filename")
	}

	zotero := document.ZoteroInfo{
		ID:              rec.ID,
		Source:          ZoteroSource,
		ExportedAt:      document.Now(),
		MatchMethod:     method,
		MatchConfidence: &confidence,
	}
	if info != nil {
		zotero.Key = info.Key
	}
	d.Provenance.Zotero = &zotero

	return out
}

// ApplyManual force-sets literal field values from an override entry.
// Unlike Apply, manual values always win; keys are applied in sorted
// order so patch sequences are deterministic.
func ApplyManual(d *document.Document, fields map[string]any, note string) []string {
	md := &d.Metadata

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var changed []string
	manual := func(path string, from, to any, assign func()) {
		d.AddManualPatch(path, from, to, note)
		assign()
		changed = append(changed, path)
	}

	for _, k := range keys {
		v := fields[k]
		switch k {
		case "year":
			year := scalarString(v)
			if year == "" {
				continue
			}
			if md.YearNorm != year {
				manual("metadata.year_norm", patchFrom(md.YearNorm), year, func() { md.YearNorm = year })
			}
			if n, err := strconv.Atoi(year); err == nil && md.Year() != year {
				from := any(nil)
				if md.HasYear() {
					from = md.Year()
				}
				manual("metadata.year", from, n, func() { md.SetYear(n) })
			}
		case "authors":
			names := stringSlice(v)
			if len(names) == 0 {
				continue
			}
			current := authorDisplays(md.Authors)
			if !equalStrings(current, names) {
				manual("metadata.authors", anySlice(current), anySlice(names), func() {
					md.Authors = plainAuthors(names)
				})
			}
		default:
			dst := fieldRef(md, k)
			if dst == nil {
				continue
			}
			val := scalarString(v)
			if val == "" || *dst == val {
				continue
			}
			manual("metadata."+k, patchFrom(*dst), val, func() { *dst = val })
		}
	}
	return changed
}

func fieldRef(md *document.Metadata, name string) *string {
	switch name {
	case "title":
		return &md.Title
	case "doi":
		return &md.DOI
	case "journal":
		return &md.Journal
	case "volume":
		return &md.Volume
	case "issue":
		return &md.Issue
	case "pages":
		return &md.Pages
	case "issn":
		return &md.ISSN
	case "url":
		return &md.URL
	case "abstract":
		return &md.Abstract
	case "year_norm":
		return &md.YearNorm
	}
	return nil
}

// patchFrom records blank strings as null, matching how absent fields
// appear in the source documents.
func patchFrom(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func authorDisplays(authors []document.Author) []string {
	out := make([]string, 0, len(authors))
	for _, a := range authors {
		out = append(out, a.DisplayName())
	}
	return out
}

func plainAuthors(names []string) []document.Author {
	out := make([]document.Author, 0, len(names))
	for _, name := range names {
		out = append(out, document.PlainAuthor(name))
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// scalarString renders an override scalar as a string. JSON numbers
// arrive as float64; integral values drop the fraction.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s := scalarString(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
