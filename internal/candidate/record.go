// Package candidate loads external bibliographic records and builds the
// read-only lookup indices the matching cascade runs against.
package candidate

import (
	"strconv"
	"strings"

	"github.com/medparse/medrec/internal/normalize"
)

// Record is one external bibliographic record. Records are immutable once
// loaded; any number of documents may match the same record.
type Record struct {
	ID             string
	Title          string
	TitleNorm      string
	DOI            string // normalized, lowercase
	ContainerTitle string
	Abstract       string
	Year           int // 0 if unknown
	Volume         string
	Issue          string
	Pages          string
	ISSN           string
	URL            string
	Authors        []string // "Given Family" display strings, input order
}

// FirstAuthorLast returns the lowercased final token of the first author
// name, "" if there are no authors.
func (r *Record) FirstAuthorLast() string {
	if len(r.Authors) == 0 {
		return ""
	}
	fields := strings.Fields(r.Authors[0])
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

// AuthorYearKey returns the "last|year" index key, "" when either part is
// missing.
func (r *Record) AuthorYearKey() string {
	last := r.FirstAuthorLast()
	if last == "" || r.Year == 0 {
		return ""
	}
	return last + "|" + strconv.Itoa(r.Year)
}

// Index holds the three lookup structures built once per run. After Build
// returns, the index is read-only and safe for concurrent matching calls.
type Index struct {
	Records      []Record
	ByID         map[string]*Record
	ByDOI        map[string]*Record
	ByTitle      map[string][]*Record
	ByAuthorYear map[string][]*Record
}

// Build constructs the lookup indices in one pass over the records.
// Duplicate DOIs are last-write-wins; each collision is reported as a
// warning rather than an error.
func Build(records []Record) (*Index, []string) {
	idx := &Index{
		Records:      records,
		ByID:         make(map[string]*Record),
		ByDOI:        make(map[string]*Record),
		ByTitle:      make(map[string][]*Record),
		ByAuthorYear: make(map[string][]*Record),
	}

	var warnings []string
	for i := range records {
		rec := &records[i]
		if rec.ID != "" {
			idx.ByID[rec.ID] = rec
		}
		if rec.DOI != "" {
			if prev, ok := idx.ByDOI[rec.DOI]; ok {
				warnings = append(warnings, "duplicate candidate DOI "+rec.DOI+" ("+prev.Title+" replaced by "+rec.Title+")")
			}
			idx.ByDOI[rec.DOI] = rec
		}
		if rec.TitleNorm != "" {
			idx.ByTitle[rec.TitleNorm] = append(idx.ByTitle[rec.TitleNorm], rec)
		}
		if key := rec.AuthorYearKey(); key != "" {
			idx.ByAuthorYear[key] = append(idx.ByAuthorYear[key], rec)
		}
	}
	return idx, warnings
}

// LookupDOI finds a record by a raw DOI value, normalizing before lookup.
func (idx *Index) LookupDOI(doi string) (*Record, bool) {
	rec, ok := idx.ByDOI[normalize.DOI(doi)]
	return rec, ok
}
