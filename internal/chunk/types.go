// Package chunk turns raw tenant documents into retrievable chunks.
//
// Tabular files chunk per row with column-header-derived text; freeform
// text chunks by fixed character window with overlap.
package chunk

import "fmt"

// SourceKind tags the metadata shape of a chunk's origin.
type SourceKind string

const (
	// SourceTabular marks chunks cut from rows of a tabular file.
	SourceTabular SourceKind = "tabular"
	// SourceText marks chunks cut from a freeform text window.
	SourceText SourceKind = "text"
)

// Metadata is the provenance of a chunk. The field set per kind is fixed:
// tabular chunks use Position as a 1-based row number, text chunks as a
// 0-based window index. Section is the sheet/table name for tabular
// sources and empty for text.
type Metadata struct {
	SourceID string     `json:"source_id"`
	Section  string     `json:"section,omitempty"`
	Position int        `json:"position"`
	Kind     SourceKind `json:"kind"`
}

// Citation renders the metadata the way answers cite their sources.
func (m Metadata) Citation() string {
	switch m.Kind {
	case SourceTabular:
		return fmt.Sprintf("%s (%s, row %d)", m.SourceID, m.Section, m.Position)
	default:
		return fmt.Sprintf("%s (part %d)", m.SourceID, m.Position+1)
	}
}

// Chunk is one retrievable unit of text plus provenance. Chunks are
// immutable once written to the store.
type Chunk struct {
	Text string   `json:"text"`
	Meta Metadata `json:"metadata"`
}
