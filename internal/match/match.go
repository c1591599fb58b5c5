// Package match implements the candidate resolution cascade: manual
// override, DOI, exact normalized title, fuzzy title, then first-author
// plus year. Tiers are tried in strict priority order and the first hit
// wins.
package match

import (
	"math"
	"strconv"

	"github.com/medparse/medrec/internal/candidate"
	"github.com/medparse/medrec/internal/normalize"
)

// Match method labels, recorded in provenance and reports.
const (
	MethodOverrideDOI = "override:doi"
	MethodOverrideKey = "override:id"
	MethodDOI         = "doi"
	MethodTitleExact  = "title_exact"
	MethodTitleFuzzy  = "title_fuzzy"
	MethodAuthorYear  = "author_year"
)

// DefaultMinFuzzy is the floor for fuzzy title acceptance.
const DefaultMinFuzzy = 0.85

// AuthorYearConfidence is the fixed confidence for the weakest tier.
const AuthorYearConfidence = 0.9

// Query carries the document-side values the cascade reads. All values
// are pre-normalized by the caller.
type Query struct {
	Filename        string
	Title           string
	TitleNorm       string
	DOI             string // normalized
	Year            int    // 0 if unknown
	FirstAuthorLast string // lowercased
}

// Result is the cascade outcome. Candidate is nil when no tier matched.
type Result struct {
	Candidate  *candidate.Record
	Method     string
	Confidence float64
}

// Matched reports whether any tier produced a candidate.
func (r Result) Matched() bool { return r.Candidate != nil }

// Matcher resolves queries against a read-only candidate index. A single
// Matcher is safe for concurrent use.
type Matcher struct {
	Index     *candidate.Index
	Overrides *Overrides
	MinFuzzy  float64
}

// NewMatcher builds a matcher with the default fuzzy floor.
func NewMatcher(idx *candidate.Index, overrides *Overrides) *Matcher {
	return &Matcher{Index: idx, Overrides: overrides, MinFuzzy: DefaultMinFuzzy}
}

// Match runs the cascade for one document. An override pin always wins,
// even when a lower tier would also hit.
func (m *Matcher) Match(q Query) Result {
	if res, ok := m.matchOverride(q); ok {
		return res
	}
	if q.DOI != "" {
		if rec, ok := m.Index.ByDOI[q.DOI]; ok {
			return Result{Candidate: rec, Method: MethodDOI, Confidence: 1.0}
		}
	}
	if q.TitleNorm != "" {
		if bucket := m.Index.ByTitle[q.TitleNorm]; len(bucket) > 0 {
			return Result{Candidate: bucket[0], Method: MethodTitleExact, Confidence: 1.0}
		}
		if res, ok := m.matchFuzzy(q); ok {
			return res
		}
	}
	if q.FirstAuthorLast != "" && q.Year != 0 {
		key := q.FirstAuthorLast + "|" + strconv.Itoa(q.Year)
		if bucket := m.Index.ByAuthorYear[key]; len(bucket) > 0 {
			return Result{Candidate: bucket[0], Method: MethodAuthorYear, Confidence: AuthorYearConfidence}
		}
	}
	return Result{}
}

func (m *Matcher) matchOverride(q Query) (Result, bool) {
	entry, ok := m.Overrides.ForFilename(q.Filename)
	if !ok {
		return Result{}, false
	}
	if entry.DOI != "" {
		if rec, ok := m.Index.LookupDOI(entry.DOI); ok {
			return Result{Candidate: rec, Method: MethodOverrideDOI, Confidence: 1.0}, true
		}
	}
	if entry.Key != "" {
		if rec, ok := m.Index.ByID[entry.Key]; ok {
			return Result{Candidate: rec, Method: MethodOverrideKey, Confidence: 1.0}, true
		}
	}
	if entry.Ref != "" {
		if rec, ok := m.Index.LookupDOI(entry.Ref); ok {
			return Result{Candidate: rec, Method: MethodOverrideDOI, Confidence: 1.0}, true
		}
		if rec, ok := m.Index.ByID[entry.Ref]; ok {
			return Result{Candidate: rec, Method: MethodOverrideKey, Confidence: 1.0}, true
		}
	}
	// A pin naming an unknown candidate must not fall through to weaker
	// tiers that could silently attach the wrong record.
	return Result{}, true
}

// matchFuzzy scans every candidate and keeps the highest Jaccard score.
// Ties keep the earliest record in index order, so results are stable
// across runs.
func (m *Matcher) matchFuzzy(q Query) (Result, bool) {
	minFuzzy := m.MinFuzzy
	if minFuzzy == 0 {
		minFuzzy = DefaultMinFuzzy
	}

	docTokens := normalize.TokenSet(q.Title)
	if len(docTokens) == 0 {
		return Result{}, false
	}

	var best *candidate.Record
	bestScore := -1.0
	for i := range m.Index.Records {
		rec := &m.Index.Records[i]
		if rec.TitleNorm == "" {
			continue
		}
		score := normalize.Jaccard(docTokens, normalize.TokenSet(rec.Title))
		if score > bestScore {
			best, bestScore = rec, score
		}
	}
	if best == nil || bestScore < minFuzzy {
		return Result{}, false
	}
	return Result{
		Candidate:  best,
		Method:     MethodTitleFuzzy,
		Confidence: math.Round(bestScore*10000) / 10000,
	}, true
}
