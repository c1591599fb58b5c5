package audit

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/medparse/medrec/internal/document"
)

func parseDoc(t *testing.T, src string) *document.Document {
	t.Helper()
	var d document.Document
	if err := json.Unmarshal([]byte(src), &d); err != nil {
		t.Fatalf("parsing test document: %v", err)
	}
	return &d
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "complete document",
			doc: `{"metadata": {"title": "T", "year": 2015, "doi": "10.1/a",
				"journal": "Chest", "abstract": "A", "authors": ["Jane Doe"]}}`,
			want: nil,
		},
		{
			name: "everything missing",
			doc:  `{"metadata": {}}`,
			want: []string{
				IssueTitleMissing, IssueYearMissing, IssueDOIMissing,
				IssueJournalMissing, IssueAbstractMissing, IssueAuthorsMissing,
			},
		},
		{
			name: "invalid year format",
			doc: `{"metadata": {"title": "T", "year": "2015-13", "doi": "10.1/a",
				"journal": "J", "abstract": "A", "authors": ["Jane Doe"]}}`,
			want: []string{IssueYearFormat},
		},
		{
			name: "iso date years accepted",
			doc: `{"metadata": {"title": "T", "year": "2015-03-31", "doi": "10.1/a",
				"journal": "J", "abstract": "A", "authors": ["Jane Doe"]}}`,
			want: nil,
		},
		{
			name: "empty author list",
			doc: `{"metadata": {"title": "T", "year": 2015, "doi": "10.1/a",
				"journal": "J", "abstract": "A", "authors": []}}`,
			want: []string{IssueAuthorsEmpty},
		},
		{
			name: "ack fragment in authors",
			doc: `{"metadata": {"title": "T", "year": 2015, "doi": "10.1/a",
				"journal": "J", "abstract": "A",
				"authors": ["Jane Doe", "Funding and Acknowledgments"]}}`,
			want: []string{IssueAuthorsAckLike},
		},
		{
			name: "group only authors",
			doc: `{"metadata": {"title": "T", "year": 2015, "doi": "10.1/a",
				"journal": "J", "abstract": "A",
				"authors": [{"display": "ICU Outcomes Consortium", "group": true}]}}`,
			want: []string{IssueAuthorsGroupOnly},
		},
		{
			name: "alternate journal and abstract keys",
			doc: `{"metadata": {"title": "T", "year": 2015, "doi": "10.1/a",
				"journal_name": "Chest", "abstract_text": "A", "authors": ["Jane Doe"]}}`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Check(parseDoc(t, tt.doc))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Check() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidYear(t *testing.T) {
	valid := []string{"2015", "1999", "2015-03", "2015-12-31", " 2015 "}
	invalid := []string{"", "15", "2015-13", "2015-00", "2015-03-32", "circa 2015", "20151"}
	for _, s := range valid {
		if !ValidYear(s) {
			t.Errorf("ValidYear(%q) = false, want true", s)
		}
	}
	for _, s := range invalid {
		if ValidYear(s) {
			t.Errorf("ValidYear(%q) = true, want false", s)
		}
	}
}

func TestAuditor_Record(t *testing.T) {
	var a Auditor

	a.Record("a.json", parseDoc(t, `{"metadata": {
		"title": "T", "year": 2015, "doi": "10.1/a", "journal": "J",
		"abstract": "A", "authors": ["Jane Doe"],
		"references_text": "1. ...", "references_struct": []}}`))
	a.Record("b.json", parseDoc(t, `{"metadata": {"title": "T"}}`))
	a.Record("c.json", parseDoc(t, `{"sections": []}`))
	a.RecordError("d.json", "json_error")

	s := a.Summary
	if s.TotalFiles != 4 {
		t.Errorf("TotalFiles = %d", s.TotalFiles)
	}
	if s.JSONErrors != 1 || s.MissingMetadata != 1 {
		t.Errorf("JSONErrors/MissingMetadata = %d/%d", s.JSONErrors, s.MissingMetadata)
	}
	if s.MissingDOI != 1 || s.MissingYear != 1 || s.MissingAuthors != 1 {
		t.Errorf("missing counters = %+v", s)
	}
	if s.HasReferencesText != 1 || s.HasReferencesStruct != 1 || s.EmptyReferencesStruct != 1 {
		t.Errorf("reference counters = %+v", s)
	}

	if len(a.Rows) != 4 {
		t.Fatalf("Rows = %d", len(a.Rows))
	}
	if a.Rows[0].Error != "" || len(a.Rows[0].Issues) != 0 {
		t.Errorf("clean file row = %+v", a.Rows[0])
	}
	if a.Rows[2].Error != "missing_metadata" {
		t.Errorf("metadata-less row = %+v", a.Rows[2])
	}
}

func TestSummary_JSONKeys(t *testing.T) {
	data, err := json.Marshal(Summary{TotalFiles: 2, MissingDOI: 1})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"total_files", "missing_doi", "empty_authors", "invalid_year_format"} {
		if _, ok := m[key]; !ok {
			t.Errorf("summary JSON missing key %q", key)
		}
	}
}
