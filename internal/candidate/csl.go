package candidate

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/medparse/medrec/internal/normalize"
)

// flexString unmarshals from either a string or a number. Citation-manager
// exports are inconsistent about scalar types for volume, issue, and id.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into string", string(data))
}

func (f flexString) String() string { return string(f) }

// flexFirst unmarshals from a string or an array of strings, keeping the
// first element. CSL exports emit ISSN both ways.
type flexFirst string

func (f *flexFirst) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexFirst(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		if len(list) > 0 {
			*f = flexFirst(list[0])
		} else {
			*f = ""
		}
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into string or []string", string(data))
}

func (f flexFirst) String() string { return string(f) }

// cslItem mirrors one entry of a CSL-JSON export. Only the fields this
// engine consumes are declared; exports vary between hyphenated and
// underscored container-title keys, so both are accepted.
type cslItem struct {
	ID                flexString `json:"id"`
	Title             string     `json:"title"`
	DOI               string     `json:"DOI"`
	ContainerTitle    flexFirst  `json:"container-title"`
	ContainerTitleAlt flexFirst  `json:"container_title"`
	Abstract          string     `json:"abstract"`
	Volume            flexString `json:"volume"`
	Issue             flexString `json:"issue"`
	Page              flexString `json:"page"`
	Pages             flexString `json:"pages"`
	ISSN              flexFirst  `json:"ISSN"`
	URL               string     `json:"URL"`
	Issued            struct {
		DateParts [][]flexString `json:"date-parts"`
	} `json:"issued"`
	Author []struct {
		Given   string `json:"given"`
		Family  string `json:"family"`
		Literal string `json:"literal"`
	} `json:"author"`
}

// ParseCSL parses a CSL-JSON export into candidate records.
func ParseCSL(data []byte) ([]Record, error) {
	var items []cslItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing CSL JSON: %w", err)
	}

	records := make([]Record, 0, len(items))
	for _, it := range items {
		records = append(records, cslItemToRecord(it))
	}
	return records, nil
}

// LoadCSL reads and parses a CSL-JSON export file.
func LoadCSL(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading candidate export: %w", err)
	}
	return ParseCSL(data)
}

func cslItemToRecord(it cslItem) Record {
	container := it.ContainerTitle.String()
	if container == "" {
		container = it.ContainerTitleAlt.String()
	}
	pages := it.Page.String()
	if pages == "" {
		pages = it.Pages.String()
	}

	var authors []string
	for _, a := range it.Author {
		given := strings.TrimSpace(a.Given)
		family := strings.TrimSpace(a.Family)
		switch {
		case given != "" || family != "":
			authors = append(authors, strings.TrimSpace(given+" "+family))
		case strings.TrimSpace(a.Literal) != "":
			authors = append(authors, strings.TrimSpace(a.Literal))
		}
	}

	return Record{
		ID:             it.ID.String(),
		Title:          it.Title,
		TitleNorm:      normalize.Text(it.Title),
		DOI:            normalize.DOI(it.DOI),
		ContainerTitle: container,
		Abstract:       it.Abstract,
		Year:           issuedYear(it.Issued.DateParts),
		Volume:         it.Volume.String(),
		Issue:          it.Issue.String(),
		Pages:          pages,
		ISSN:           it.ISSN.String(),
		URL:            it.URL,
		Authors:        authors,
	}
}

// issuedYear extracts the year from CSL issued.date-parts, 0 if absent.
func issuedYear(dateParts [][]flexString) int {
	if len(dateParts) == 0 || len(dateParts[0]) == 0 {
		return 0
	}
	year, err := strconv.Atoi(dateParts[0][0].String())
	if err != nil {
		return 0
	}
	return year
}
