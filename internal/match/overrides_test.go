package match

import (
	"encoding/json"
	"testing"
)

func TestOverrides_Unmarshal(t *testing.T) {
	data := []byte(`{
		"by_filename": {
			"a.json": "10.5/xyz",
			"b.json": {"doi": "10.5/abc", "year": 2019},
			"c.json": {"key": "K9"}
		},
		"by_title": {
			"some normalized title": {"journal": "Chest", "year": "2020"}
		}
	}`)

	var o Overrides
	if err := json.Unmarshal(data, &o); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if got := o.ByFilename["a.json"]; got.Ref != "10.5/xyz" || got.DOI != "" {
		t.Errorf("bare string entry = %+v", got)
	}

	b := o.ByFilename["b.json"]
	if b.DOI != "10.5/abc" {
		t.Errorf("DOI = %q", b.DOI)
	}
	if b.Fields["year"] != float64(2019) {
		t.Errorf("Fields[year] = %v", b.Fields["year"])
	}
	if b.Fields["doi"] != "10.5/abc" {
		t.Errorf("doi should also be kept as a literal field, got %v", b.Fields["doi"])
	}

	if got := o.ByFilename["c.json"]; got.Key != "K9" || got.Fields != nil {
		t.Errorf("key-only entry = %+v", got)
	}

	fields, ok := o.FieldsForTitle("some normalized title", "")
	if !ok || fields["journal"] != "Chest" {
		t.Errorf("FieldsForTitle = %v, %v", fields, ok)
	}
}

func TestOverrides_FieldsForTitleRawFallback(t *testing.T) {
	o := &Overrides{ByTitle: map[string]map[string]any{
		"a raw title": {"year": "2001"},
	}}
	fields, ok := o.FieldsForTitle("a raw title normalized differently", "  A Raw Title ")
	if !ok || fields["year"] != "2001" {
		t.Errorf("raw-title fallback failed: %v, %v", fields, ok)
	}
}

func TestOverrides_NilSafe(t *testing.T) {
	var o *Overrides
	if _, ok := o.ForFilename("x.json"); ok {
		t.Error("nil Overrides should report no entry")
	}
	if _, ok := o.FieldsForTitle("t", "t"); ok {
		t.Error("nil Overrides should report no title fields")
	}
}

func TestOverrideEntry_RejectsArrays(t *testing.T) {
	var e OverrideEntry
	if err := json.Unmarshal([]byte(`["10.5/x"]`), &e); err == nil {
		t.Error("expected error for array entry")
	}
}
