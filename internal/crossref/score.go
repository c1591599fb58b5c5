package crossref

import (
	"github.com/medparse/medrec/internal/normalize"
)

// Acceptance thresholds. Enrichment writes to documents unattended, so a
// wrong match is worse than no match.
const (
	// AcceptScore accepts on title similarity alone.
	AcceptScore = 0.92

	// AcceptScoreCorroborated accepts a slightly weaker title when both
	// the year and the first author also agree.
	AcceptScoreCorroborated = 0.88

	yearBonus   = 0.04
	authorBonus = 0.06
)

// Score rates a candidate work against the document: Jaccard similarity
// of title token sets plus small bonuses for an exact year and matching
// first-author family name.
func Score(title string, year int, firstAuthorLast string, w Work) float64 {
	s := normalize.Jaccard(normalize.TokenSet(title), normalize.TokenSet(w.Title))
	if year != 0 && w.Year == year {
		s += yearBonus
	}
	if firstAuthorLast != "" && w.FirstAuthorFamily == firstAuthorLast {
		s += authorBonus
	}
	return s
}

// Accept decides whether a scored work is trustworthy enough to merge.
func Accept(score float64, year int, firstAuthorLast string, w Work) bool {
	if score >= AcceptScore {
		return true
	}
	return score >= AcceptScoreCorroborated &&
		year != 0 && w.Year == year &&
		firstAuthorLast != "" && w.FirstAuthorFamily == firstAuthorLast
}
