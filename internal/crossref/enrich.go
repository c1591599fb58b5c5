package crossref

import (
	"context"
	"strconv"
	"strings"

	"github.com/medparse/medrec/internal/document"
	"github.com/medparse/medrec/internal/normalize"
)

// SourceCrossref tags provenance patches written by enrichment.
const SourceCrossref = "crossref"

// Needs reports which enrichable fields a document is missing.
func Needs(md *document.Metadata) (doi, journal bool) {
	doi = strings.TrimSpace(md.DOI) == ""
	journal = strings.TrimSpace(md.Journal) == "" &&
		md.ExtraString("journal_full") == "" &&
		md.ExtraString("container-title") == ""
	return doi, journal
}

// Enrich fills a document's missing DOI and journal from Crossref.
// Returns the changed field names, empty when the document is already
// complete, no work scored above the acceptance thresholds, or the query
// came back empty.
func Enrich(ctx context.Context, c *Client, d *document.Document) ([]string, error) {
	md := &d.Metadata
	needDOI, needJournal := Needs(md)
	if !needDOI && !needJournal {
		return nil, nil
	}

	year := documentYear(md)
	firstLast := md.FirstAuthorLast()

	works, err := c.QueryTitle(ctx, md.Title, year, firstLast)
	if err != nil {
		return nil, err
	}
	if len(works) == 0 {
		return nil, nil
	}

	var best *Work
	bestScore := 0.0
	for i := range works {
		if score := Score(md.Title, year, firstLast, works[i]); score > bestScore {
			best, bestScore = &works[i], score
		}
	}
	if best == nil || !Accept(bestScore, year, firstLast, *best) {
		return nil, nil
	}

	var changed []string
	fill := func(name string, dst *string, val string) {
		if val == "" || *dst != "" {
			return
		}
		d.AddPatch("metadata."+name, nil, val, SourceCrossref, bestScore)
		*dst = val
		changed = append(changed, name)
	}

	if needDOI {
		fill("doi", &md.DOI, best.DOI)
	}
	if needJournal {
		fill("journal", &md.Journal, best.ContainerTitle)
	}
	fill("volume", &md.Volume, best.Volume)
	fill("issue", &md.Issue, best.Issue)
	fill("pages", &md.Pages, best.Pages)
	fill("issn", &md.ISSN, best.ISSN)
	fill("url", &md.URL, best.URL)
	if best.Year != 0 {
		fill("year_norm", &md.YearNorm, strconv.Itoa(best.Year))
	}
	return changed, nil
}

// documentYear scans the raw then normalized year field for a
// plausible four-digit year, 0 if neither holds one.
func documentYear(md *document.Metadata) int {
	for _, raw := range []string{md.Year(), md.YearNorm} {
		if y, ok := normalize.Year(raw); ok {
			return y
		}
	}
	return 0
}
