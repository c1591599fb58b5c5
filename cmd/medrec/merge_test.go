package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/medparse/medrec/internal/candidate"
	"github.com/medparse/medrec/internal/match"
	"github.com/medparse/medrec/internal/normalize"
)

func TestSummarize(t *testing.T) {
	rows := []mergeRow{
		{File: "a.json", Status: "doi", Changed: "metadata.journal"},
		{File: "b.json", Status: "title_exact"},
		{File: "c.json", Status: "title_fuzzy,doi_conflict", Changed: "metadata.year"},
		{File: "d.json", Status: "author_year"},
		{File: "e.json", Status: "override:doi"},
		{File: "f.json", Status: "manual_fields", Changed: "metadata.title"},
		{File: "g.json", Status: "unmatched"},
		{File: "h.json", Status: "unmatched"},
		{File: "i.json", Status: "error", Error: "boom"},
	}

	s := summarize(rows)

	if s.Total != 9 {
		t.Errorf("Total = %d, want 9", s.Total)
	}
	if s.MatchedDOI != 1 || s.MatchedTitleExact != 1 || s.MatchedTitleFuzzy != 1 {
		t.Errorf("matched counts = %d/%d/%d, want 1/1/1",
			s.MatchedDOI, s.MatchedTitleExact, s.MatchedTitleFuzzy)
	}
	if s.MatchedAuthorYear != 1 || s.MatchedOverride != 1 || s.ManualFields != 1 {
		t.Errorf("author_year/override/manual = %d/%d/%d, want 1/1/1",
			s.MatchedAuthorYear, s.MatchedOverride, s.ManualFields)
	}
	if s.Unmatched != 2 || s.Errors != 1 {
		t.Errorf("unmatched/errors = %d/%d, want 2/1", s.Unmatched, s.Errors)
	}
	if s.DOIConflicts != 1 {
		t.Errorf("DOIConflicts = %d, want 1", s.DOIConflicts)
	}
	if s.Changed != 3 {
		t.Errorf("Changed = %d, want 3", s.Changed)
	}
	// manual_fields rows never matched a candidate, so the ratio counts
	// them alongside the plain unmatched rows
	want := 3.0 / 9.0
	if s.UnmatchedRatio != want {
		t.Errorf("UnmatchedRatio = %v, want %v", s.UnmatchedRatio, want)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := summarize(nil)
	if s.Total != 0 || s.UnmatchedRatio != 0 {
		t.Errorf("got total=%d ratio=%v, want zeros", s.Total, s.UnmatchedRatio)
	}
}

// setMergeGlobals swaps the command flags mergeOne reads, returning a
// restore func for deferred cleanup.
func setMergeGlobals(in string, strict, dryRun bool) func() {
	prevIn, prevStrict, prevDry := mergeIn, mergeStrict, mergeDryRun
	mergeIn, mergeStrict, mergeDryRun = in, strict, dryRun
	return func() { mergeIn, mergeStrict, mergeDryRun = prevIn, prevStrict, prevDry }
}

func writeTestDocument(t *testing.T, dir, name, title, doi string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data := []byte(`{"metadata": {"title": ` + strconv.Quote(title) + `, "doi": ` + strconv.Quote(doi) + `}}`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMergeOne_StrictConflictBlocksWrite(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	path := writeTestDocument(t, inDir, "paper.json", "Early Tracheostomy Outcomes", "10.9/xyz")

	idx, _ := candidate.Build([]candidate.Record{{
		ID:        "CAND1",
		Title:     "Early Tracheostomy Outcomes",
		TitleNorm: normalize.Text("Early Tracheostomy Outcomes"),
		DOI:       "10.1/abc",
	}})
	matcher := match.NewMatcher(idx, nil)

	restore := setMergeGlobals(inDir, true, false)
	defer restore()

	row := mergeOne(path, outDir, matcher, nil)
	if row.Status != "title_exact,doi_conflict" {
		t.Fatalf("Status = %q, want title_exact,doi_conflict", row.Status)
	}
	if _, err := os.Stat(filepath.Join(outDir, "paper.json")); !os.IsNotExist(err) {
		t.Errorf("conflicted document was written in strict mode")
	}

	mergeStrict = false
	mergeOne(path, outDir, matcher, nil)
	if _, err := os.Stat(filepath.Join(outDir, "paper.json")); err != nil {
		t.Errorf("conflicted document missing outside strict mode: %v", err)
	}
}

func TestMergeOne_WritesUnmatchedToSeparateOutDir(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	path := writeTestDocument(t, inDir, "orphan.json", "Completely Unrelated Title", "")

	idx, _ := candidate.Build(nil)
	matcher := match.NewMatcher(idx, nil)

	restore := setMergeGlobals(inDir, false, false)
	defer restore()

	row := mergeOne(path, outDir, matcher, nil)
	if row.Status != "unmatched" {
		t.Fatalf("Status = %q, want unmatched", row.Status)
	}
	if _, err := os.Stat(filepath.Join(outDir, "orphan.json")); err != nil {
		t.Errorf("unmatched document missing from output dir: %v", err)
	}
}

func TestDocumentYear(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		norm string
		want int
	}{
		{"plain year", "2015", "", 2015},
		{"iso date", "2015-03-01", "", 2015},
		{"embedded in prose", "Published 2015", "", 2015},
		{"falls back to norm", "n.d.", "2019", 2019},
		{"whitespace", " 2021 ", "", 2021},
		{"neither parses", "n.d.", "", 0},
		{"both blank", "", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := documentYear(tt.raw, tt.norm); got != tt.want {
				t.Errorf("documentYear(%q, %q) = %d, want %d", tt.raw, tt.norm, got, tt.want)
			}
		})
	}
}
