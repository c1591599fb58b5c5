package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestListDocuments(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.json", "a.json", "processing_report.json", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := ListDocuments(dir)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v", paths)
	}
	if filepath.Base(paths[0]) != "a.json" || filepath.Base(paths[1]) != "b.json" {
		t.Errorf("paths not sorted: %v", paths)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	src := `{"metadata": {"title": "T", "year": 2015}, "sections": [{"heading": "Intro"}]}`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := ReadDocument(path)
	if err != nil {
		t.Fatalf("ReadDocument() error = %v", err)
	}
	if d.Metadata.Title != "T" {
		t.Errorf("Title = %q", d.Metadata.Title)
	}

	out := filepath.Join(dir, "nested", "doc.json")
	if err := WriteDocument(out, d); err != nil {
		t.Fatalf("WriteDocument() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, `"sections"`) {
		t.Error("unknown keys were dropped on rewrite")
	}
	if !strings.Contains(text, `"year": 2015`) {
		t.Error("numeric year changed shape on rewrite")
	}
	if !strings.HasSuffix(text, "\n") {
		t.Error("document file should end with a newline")
	}
}

func TestReadDocument_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadDocument(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestWriteReports(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "reports", "summary.json")
	if err := WriteJSONReport(jsonPath, map[string]int{"total": 3}); err != nil {
		t.Fatalf("WriteJSONReport() error = %v", err)
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"total": 3`) {
		t.Errorf("summary = %s", data)
	}

	csvPath := filepath.Join(dir, "reports", "rows.csv")
	err = WriteCSVReport(csvPath, []string{"file", "status"}, [][]string{
		{"a.json", "matched"},
		{"b, with comma.json", "unmatched"},
	})
	if err != nil {
		t.Fatalf("WriteCSVReport() error = %v", err)
	}
	data, err = os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 || lines[0] != "file,status" {
		t.Errorf("csv = %q", lines)
	}
	if !strings.Contains(lines[2], `"b, with comma.json"`) {
		t.Errorf("comma not quoted: %q", lines[2])
	}
}
