package candidate

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/medparse/medrec/internal/normalize"
)

// CatalogInfo carries the auxiliary provenance columns of the tabular
// export: the source-system key and the attachment filenames, used to tie
// a merged document back to its original PDF.
type CatalogInfo struct {
	Key          string
	TitleNorm    string
	PDFBasenames []string
}

// Catalog maps a source key (or normalized title, when the row has no key)
// to its auxiliary info.
type Catalog map[string]CatalogInfo

// Header column aliases seen across export versions.
var (
	keyColumns        = []string{"Key", "key", "ID", "Id"}
	titleColumns      = []string{"Title", "title"}
	attachmentColumns = []string{"File Attachments", "Attachments", "File", "file"}
)

// ParseCatalog reads the tabular export. Rows missing both key and title
// are skipped; the format varies enough that absence is expected, not an
// error.
func ParseCatalog(r io.Reader) (Catalog, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading catalog header: %w", err)
	}
	col := func(names []string) int {
		for _, name := range names {
			for i, h := range header {
				if strings.TrimSpace(h) == name {
					return i
				}
			}
		}
		return -1
	}
	keyIdx := col(keyColumns)
	titleIdx := col(titleColumns)
	attIdx := col(attachmentColumns)

	out := make(Catalog)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading catalog row: %w", err)
		}

		field := func(idx int) string {
			if idx < 0 || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		key := field(keyIdx)
		titleNorm := normalize.Text(field(titleIdx))
		if key == "" && titleNorm == "" {
			continue
		}

		var pdfs []string
		for _, part := range strings.Split(field(attIdx), ";") {
			base := path.Base(strings.TrimSpace(part))
			if strings.HasSuffix(strings.ToLower(base), ".pdf") {
				pdfs = append(pdfs, base)
			}
		}

		outKey := key
		if outKey == "" {
			outKey = titleNorm
		}
		out[outKey] = CatalogInfo{Key: key, TitleNorm: titleNorm, PDFBasenames: pdfs}
	}
	return out, nil
}

// LoadCatalog reads and parses a tabular export file.
func LoadCatalog(filename string) (Catalog, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()
	return ParseCatalog(f)
}

// FindForRecord resolves the catalog row for a matched record: by source
// key first, then by normalized title.
func (c Catalog) FindForRecord(rec *Record) (CatalogInfo, bool) {
	if rec == nil {
		return CatalogInfo{}, false
	}
	if rec.ID != "" {
		if info, ok := c[rec.ID]; ok {
			return info, true
		}
	}
	if rec.TitleNorm != "" {
		for _, info := range c {
			if info.TitleNorm == rec.TitleNorm {
				return info, true
			}
		}
	}
	return CatalogInfo{}, false
}
