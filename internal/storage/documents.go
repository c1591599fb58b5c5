// Package storage reads and writes the document corpus and its report
// files. Documents are one JSON object per file in a flat directory.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/medparse/medrec/internal/document"
)

// reportFilename is pipeline bookkeeping that lives next to the corpus
// but is not a document.
const reportFilename = "processing_report.json"

// ListDocuments returns the document paths in dir, sorted by name.
func ListDocuments(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	var paths []string
	for _, p := range matches {
		if filepath.Base(p) == reportFilename {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadDocument loads and parses one document file.
func ReadDocument(path string) (*document.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	var d document.Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return &d, nil
}

// WriteDocument writes a document as indented JSON, creating parent
// directories as needed.
func WriteDocument(path string, d *document.Document) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	return nil
}
