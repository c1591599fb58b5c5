// Package normalize provides text, identifier, and date normalization used
// as matching keys throughout the reconciliation pipeline.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// decomposer splits accented characters into base letter plus combining
// marks so the marks can be dropped below.
var decomposer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// Text normalizes a string for use as a matching key: Unicode decomposition
// with diacritics stripped, lowercased, with every run of non-alphanumeric
// characters collapsed to a single space. Idempotent.
func Text(s string) string {
	if s == "" {
		return ""
	}
	folded, _, err := transform.String(decomposer, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	prevSpace := true
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevSpace = false
		} else if !prevSpace {
			b.WriteByte(' ')
			prevSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokenize splits the normalized form of s into tokens, discarding tokens
// shorter than two characters.
func Tokenize(s string) []string {
	var out []string
	for _, t := range strings.Fields(Text(s)) {
		if len(t) >= 2 {
			out = append(out, t)
		}
	}
	return out
}

// TokenSet returns the token set of s for Jaccard comparison.
func TokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range Tokenize(s) {
		set[t] = true
	}
	return set
}

// Jaccard computes |A∩B| / |A∪B| over two token sets. Two empty sets are
// defined as identical (1.0); exactly one empty set scores 0.0.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// doiResolverPrefixes are resolver URL prefixes stripped from DOIs.
var doiResolverPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi.org/",
}

// DOI canonicalizes a DOI string: trims whitespace, strips a leading
// resolver URL prefix, and lowercases. Returns "" for blank input.
func DOI(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, prefix := range doiResolverPrefixes {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	return s
}

// yearPattern matches a 4-digit substring beginning with 19 or 20.
var yearPattern = regexp.MustCompile(`(19|20)\d{2}`)

// Year scans s for the first 4-digit year beginning with "19" or "20".
// The second return value is false when no year is found.
func Year(s string) (int, bool) {
	m := yearPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	year := 0
	for _, c := range m {
		year = year*10 + int(c-'0')
	}
	return year, true
}

// doiPattern matches DOI-shaped substrings in free text.
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/\S+`)

// doiLeadPrefix strips a "doi:" label ahead of the registrant code.
var doiLeadPrefix = regexp.MustCompile(`(?i)^doi\s*:\s*`)

// doiTrailing lists punctuation commonly glued onto DOIs in running text.
const doiTrailing = ",.;)]}>\"'"

// ExtractDOIs scans free text for DOI-shaped substrings, strips label
// prefixes and trailing punctuation, and returns lowercased DOIs with
// order-preserving deduplication.
func ExtractDOIs(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range doiPattern.FindAllString(text, -1) {
		doi := doiLeadPrefix.ReplaceAllString(m, "")
		doi = strings.ToLower(strings.TrimRight(strings.TrimSpace(doi), doiTrailing))
		if doi != "" && !seen[doi] {
			seen[doi] = true
			out = append(out, doi)
		}
	}
	return out
}
