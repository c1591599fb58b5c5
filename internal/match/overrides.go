package match

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// OverrideEntry is one by-filename override. The overrides file allows two
// shapes: a bare string naming a DOI or a candidate key, or an object with
// explicit "doi"/"key" entries plus literal field values to force-set.
type OverrideEntry struct {
	DOI    string
	Key    string
	Ref    string // bare-string form; resolved as DOI first, then key
	Fields map[string]any
}

func (e *OverrideEntry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = OverrideEntry{Ref: strings.TrimSpace(s)}
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("override entry must be a string or object: %w", err)
	}

	entry := OverrideEntry{Fields: make(map[string]any)}
	for k, v := range obj {
		switch k {
		case "doi":
			if s, ok := v.(string); ok {
				entry.DOI = s
			}
			// a doi override is also a literal field value
			entry.Fields[k] = v
		case "key":
			if s, ok := v.(string); ok {
				entry.Key = s
			}
		default:
			entry.Fields[k] = v
		}
	}
	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}
	*e = entry
	return nil
}

// Overrides is the operator-maintained escape hatch for documents the
// cascade cannot place: candidate pins by filename, and literal field
// values by filename or by normalized title.
type Overrides struct {
	ByFilename map[string]OverrideEntry  `json:"by_filename"`
	ByTitle    map[string]map[string]any `json:"by_title"`
}

// LoadOverrides reads an overrides JSON file.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading overrides: %w", err)
	}
	var o Overrides
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parsing overrides: %w", err)
	}
	return &o, nil
}

// ForFilename returns the override entry for a document filename.
func (o *Overrides) ForFilename(name string) (OverrideEntry, bool) {
	if o == nil || o.ByFilename == nil {
		return OverrideEntry{}, false
	}
	entry, ok := o.ByFilename[name]
	return entry, ok
}

// FieldsForTitle returns literal field overrides keyed by normalized title,
// falling back to the raw title lowercased.
func (o *Overrides) FieldsForTitle(titleNorm, rawTitle string) (map[string]any, bool) {
	if o == nil || o.ByTitle == nil {
		return nil, false
	}
	if fields, ok := o.ByTitle[titleNorm]; ok {
		return fields, true
	}
	fields, ok := o.ByTitle[strings.ToLower(strings.TrimSpace(rawTitle))]
	return fields, ok
}
