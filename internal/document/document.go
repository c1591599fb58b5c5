// Package document defines the extracted-document model: bibliographic
// metadata plus an append-only provenance ledger. Documents are produced
// upstream by the extraction pipeline; this engine only fills, corrects,
// and records, so every unknown JSON key round-trips untouched.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Patch operations.
const (
	OpSet           = "set"
	OpManualReplace = "manual_replace"
)

// Document is one processed source article.
type Document struct {
	Metadata   Metadata
	Provenance Provenance

	metadataPresent   bool
	provenancePresent bool
	extra             map[string]json.RawMessage
}

// HasMetadata reports whether the source JSON carried a metadata object.
func (d *Document) HasMetadata() bool {
	return d.metadataPresent
}

// Patch records one field mutation. Patches are append-only: once written
// they are never modified or removed, and their order within a document is
// insertion order.
type Patch struct {
	Op         string  `json:"op"`
	Path       string  `json:"path"`
	From       any     `json:"from"`
	To         any     `json:"to"`
	Source     string  `json:"source"`
	Note       string  `json:"note,omitempty"`
	Confidence float64 `json:"confidence"`
	At         string  `json:"at,omitempty"`
}

// Now returns the current UTC time in the RFC 3339 form used throughout
// provenance records.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// AddPatch appends a set patch to the provenance ledger. The caller must
// apply the same mutation to the metadata in the same operation; the
// two-step keeps the ledger and the data from diverging.
func (d *Document) AddPatch(path string, from, to any, source string, confidence float64) {
	d.Provenance.Patches = append(d.Provenance.Patches, Patch{
		Op:         OpSet,
		Path:       path,
		From:       from,
		To:         to,
		Source:     source,
		Confidence: confidence,
		At:         Now(),
	})
	d.provenancePresent = true
}

// AddManualPatch appends a manual_replace patch for operator-supplied
// overrides. Confidence is fixed at 0.99: manual values are trusted but
// still distinguishable from cascade matches in the ledger.
func (d *Document) AddManualPatch(path string, from, to any, note string) {
	d.Provenance.Patches = append(d.Provenance.Patches, Patch{
		Op:         OpManualReplace,
		Path:       path,
		From:       from,
		To:         to,
		Source:     "manual_patch",
		Note:       note,
		Confidence: 0.99,
		At:         Now(),
	})
	d.provenancePresent = true
}

// ZoteroInfo records how a document was joined to the citation-manager
// export during the most recent merge pass.
type ZoteroInfo struct {
	Key             string   `json:"key,omitempty"`
	ID              string   `json:"id,omitempty"`
	Source          string   `json:"source,omitempty"`
	ExportedAt      string   `json:"exported_at,omitempty"`
	MatchMethod     string   `json:"match_method,omitempty"`
	MatchConfidence *float64 `json:"match_confidence,omitempty"`
}

// Provenance is the document's audit record: the patch ledger plus
// source-system identifiers. Like Metadata, unknown keys round-trip.
type Provenance struct {
	Patches         []Patch
	OrigPDFFilename string
	Zotero          *ZoteroInfo

	extra map[string]json.RawMessage
}

func (p *Provenance) isZero() bool {
	return len(p.Patches) == 0 && p.OrigPDFFilename == "" && p.Zotero == nil && len(p.extra) == 0
}

func (p *Provenance) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing provenance: %w", err)
	}

	if v, ok := raw["patches"]; ok {
		if err := json.Unmarshal(v, &p.Patches); err != nil {
			return fmt.Errorf("provenance.patches: %w", err)
		}
		delete(raw, "patches")
	}
	if v, ok := raw["orig_pdf_filename"]; ok {
		s, err := flexString(v)
		if err != nil {
			return fmt.Errorf("provenance.orig_pdf_filename: %w", err)
		}
		p.OrigPDFFilename = s
		delete(raw, "orig_pdf_filename")
	}
	if v, ok := raw["zotero"]; ok {
		if !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			p.Zotero = &ZoteroInfo{}
			if err := json.Unmarshal(v, p.Zotero); err != nil {
				return fmt.Errorf("provenance.zotero: %w", err)
			}
		}
		delete(raw, "zotero")
	}
	if len(raw) > 0 {
		p.extra = raw
	}
	return nil
}

func (p Provenance) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(p.extra)+3)
	for k, v := range p.extra {
		out[k] = v
	}
	if len(p.Patches) > 0 {
		data, err := json.Marshal(p.Patches)
		if err != nil {
			return nil, fmt.Errorf("encoding provenance.patches: %w", err)
		}
		out["patches"] = data
	}
	if p.OrigPDFFilename != "" {
		data, err := json.Marshal(p.OrigPDFFilename)
		if err != nil {
			return nil, err
		}
		out["orig_pdf_filename"] = data
	}
	if p.Zotero != nil {
		data, err := json.Marshal(p.Zotero)
		if err != nil {
			return nil, fmt.Errorf("encoding provenance.zotero: %w", err)
		}
		out["zotero"] = data
	}
	return json.Marshal(out)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing document: %w", err)
	}

	if v, ok := raw["metadata"]; ok {
		if isObject(v) {
			if err := json.Unmarshal(v, &d.Metadata); err != nil {
				return err
			}
			d.metadataPresent = true
		}
		delete(raw, "metadata")
	}
	if v, ok := raw["provenance"]; ok {
		if isObject(v) {
			if err := json.Unmarshal(v, &d.Provenance); err != nil {
				return err
			}
			d.provenancePresent = true
		}
		delete(raw, "provenance")
	}
	if len(raw) > 0 {
		d.extra = raw
	}
	return nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.extra)+2)
	for k, v := range d.extra {
		out[k] = v
	}
	if d.metadataPresent || !d.Metadata.isZero() {
		data, err := json.Marshal(d.Metadata)
		if err != nil {
			return nil, err
		}
		out["metadata"] = data
	}
	if d.provenancePresent || !d.Provenance.isZero() {
		data, err := json.Marshal(d.Provenance)
		if err != nil {
			return nil, err
		}
		out["provenance"] = data
	}
	return json.Marshal(out)
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
