package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Metadata holds the bibliographic fields of an extracted document. The
// extraction pipeline emits more keys than this engine touches
// (references_text, section offsets, and so on); unknown keys are kept in an
// extra map and written back verbatim.
type Metadata struct {
	Title    string
	Authors  []Author
	YearNorm string
	DOI      string
	Journal  string
	Volume   string
	Issue    string
	Pages    string
	ISSN     string
	URL      string
	Abstract string

	// yearRaw preserves the extracted year exactly as found (string or
	// number) so rewrites do not change its JSON shape.
	yearRaw json.RawMessage
	extra   map[string]json.RawMessage
}

// Year returns the raw extracted year as a display string, "" if absent.
func (m *Metadata) Year() string {
	return rawScalarString(m.yearRaw)
}

// SetYear records an integer year, replacing any raw value.
func (m *Metadata) SetYear(year int) {
	m.yearRaw = json.RawMessage(strconv.Itoa(year))
}

// HasYear reports whether a year value is present and non-blank.
func (m *Metadata) HasYear() bool {
	return m.Year() != ""
}

// FirstAuthorLast returns the lowercased last name of the first author,
// "" if there are no authors. Falls back to the final token of the display
// name when no family name is recorded.
func (m *Metadata) FirstAuthorLast() string {
	if len(m.Authors) == 0 {
		return ""
	}
	return strings.ToLower(m.Authors[0].FamilyName())
}

// ExtraRaw returns a passthrough metadata key verbatim, nil when absent.
func (m *Metadata) ExtraRaw(key string) json.RawMessage {
	return m.extra[key]
}

// ExtraString renders a passthrough metadata key as a scalar string, ""
// when absent or not a scalar.
func (m *Metadata) ExtraString(key string) string {
	return rawScalarString(m.extra[key])
}

// HasExtra reports whether a passthrough metadata key is present.
func (m *Metadata) HasExtra(key string) bool {
	_, ok := m.extra[key]
	return ok
}

func (m *Metadata) isZero() bool {
	return m.Title == "" && len(m.Authors) == 0 && m.YearNorm == "" &&
		m.DOI == "" && m.Journal == "" && m.Volume == "" && m.Issue == "" &&
		m.Pages == "" && m.ISSN == "" && m.URL == "" && m.Abstract == "" &&
		len(m.yearRaw) == 0 && len(m.extra) == 0
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing metadata: %w", err)
	}

	take := func(key string) json.RawMessage {
		v, ok := raw[key]
		if ok {
			delete(raw, key)
		}
		return v
	}
	takeStr := func(key string) (string, error) {
		v := take(key)
		if v == nil {
			return "", nil
		}
		s, err := flexString(v)
		if err != nil {
			return "", fmt.Errorf("metadata.%s: %w", key, err)
		}
		return s, nil
	}

	var err error
	if m.Title, err = takeStr("title"); err != nil {
		return err
	}
	if v := take("authors"); v != nil && !bytes.Equal(v, []byte("null")) {
		if err := json.Unmarshal(v, &m.Authors); err != nil {
			return fmt.Errorf("metadata.authors: %w", err)
		}
	}
	if v := take("year"); v != nil && !bytes.Equal(v, []byte("null")) {
		m.yearRaw = v
	}
	if m.YearNorm, err = takeStr("year_norm"); err != nil {
		return err
	}
	if m.DOI, err = takeStr("doi"); err != nil {
		return err
	}
	if m.Journal, err = takeStr("journal"); err != nil {
		return err
	}
	if m.Volume, err = takeStr("volume"); err != nil {
		return err
	}
	if m.Issue, err = takeStr("issue"); err != nil {
		return err
	}
	if m.Pages, err = takeStr("pages"); err != nil {
		return err
	}
	if m.ISSN, err = takeStr("issn"); err != nil {
		return err
	}
	if m.URL, err = takeStr("url"); err != nil {
		return err
	}
	if m.Abstract, err = takeStr("abstract"); err != nil {
		return err
	}

	if len(raw) > 0 {
		m.extra = raw
	}
	return nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.extra)+12)
	for k, v := range m.extra {
		out[k] = v
	}

	put := func(key string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding metadata.%s: %w", key, err)
		}
		out[key] = data
		return nil
	}
	putStr := func(key, v string) error {
		if v == "" {
			return nil
		}
		return put(key, v)
	}

	if err := putStr("title", m.Title); err != nil {
		return nil, err
	}
	if len(m.Authors) > 0 {
		if err := put("authors", m.Authors); err != nil {
			return nil, err
		}
	}
	if len(m.yearRaw) > 0 {
		out["year"] = m.yearRaw
	}
	if err := putStr("year_norm", m.YearNorm); err != nil {
		return nil, err
	}
	if err := putStr("doi", m.DOI); err != nil {
		return nil, err
	}
	if err := putStr("journal", m.Journal); err != nil {
		return nil, err
	}
	if err := putStr("volume", m.Volume); err != nil {
		return nil, err
	}
	if err := putStr("issue", m.Issue); err != nil {
		return nil, err
	}
	if err := putStr("pages", m.Pages); err != nil {
		return nil, err
	}
	if err := putStr("issn", m.ISSN); err != nil {
		return nil, err
	}
	if err := putStr("url", m.URL); err != nil {
		return nil, err
	}
	if err := putStr("abstract", m.Abstract); err != nil {
		return nil, err
	}

	return json.Marshal(out)
}

// Author is one entry in the ordered author list. Extraction emits either a
// bare display string, a person object {given, family}, or a group entry
// (consortium or working group) flagged with group=true.
type Author struct {
	Given   string
	Family  string
	Display string
	Group   bool

	// plain marks authors parsed from (or destined for) a bare JSON string.
	plain bool
}

// PlainAuthor builds an author that serializes as a bare display string,
// the shape candidate exports use.
func PlainAuthor(name string) Author {
	return Author{Display: name, plain: true}
}

// DisplayName returns the best printable name for the author.
func (a Author) DisplayName() string {
	if a.Display != "" {
		return a.Display
	}
	return strings.TrimSpace(strings.TrimSpace(a.Given) + " " + strings.TrimSpace(a.Family))
}

// FamilyName returns the family name, falling back to the final token of
// the display name.
func (a Author) FamilyName() string {
	if a.Family != "" {
		return a.Family
	}
	fields := strings.Fields(a.Display)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func (a *Author) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = Author{Display: strings.TrimSpace(s), plain: true}
		return nil
	}

	var obj struct {
		Given   string `json:"given"`
		Family  string `json:"family"`
		Display string `json:"display"`
		Group   bool   `json:"group"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("author must be a string or object: %w", err)
	}
	*a = Author{
		Given:   strings.TrimSpace(obj.Given),
		Family:  strings.TrimSpace(obj.Family),
		Display: strings.TrimSpace(obj.Display),
		Group:   obj.Group,
	}
	return nil
}

func (a Author) MarshalJSON() ([]byte, error) {
	if a.plain && !a.Group && a.Given == "" && a.Family == "" {
		return json.Marshal(a.Display)
	}
	obj := struct {
		Given   string `json:"given,omitempty"`
		Family  string `json:"family,omitempty"`
		Display string `json:"display,omitempty"`
		Group   bool   `json:"group,omitempty"`
	}{a.Given, a.Family, a.Display, a.Group}
	return json.Marshal(obj)
}

// flexString decodes a JSON scalar (string, number, bool, or null) into a
// trimmed string. Extraction output is loosely typed, so absence and type
// drift are values here, not errors.
func flexString(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err == nil {
		return n.String(), nil
	}
	var b bool
	if err := json.Unmarshal(trimmed, &b); err == nil {
		return strconv.FormatBool(b), nil
	}
	return "", fmt.Errorf("expected scalar, got %s", trimmed)
}

// rawScalarString renders a raw JSON scalar as a plain string, "" for
// absent or unparseable values.
func rawScalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	s, err := flexString(raw)
	if err != nil {
		return ""
	}
	return s
}
