package chunk

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Tabular parses CSV/TSV content into one chunk per data row. Each row's
// text pairs every column header with its cell value so lexical search can
// match on either. The header row itself produces no chunk.
func Tabular(sourceID, section string, r io.Reader, comma rune) ([]Chunk, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1 // ragged rows are tolerated
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return []Chunk{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var chunks []Chunk
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+1, err)
		}
		row++

		text := rowText(header, record)
		if text == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Text: text,
			Meta: Metadata{
				SourceID: sourceID,
				Section:  section,
				Position: row,
				Kind:     SourceTabular,
			},
		})
	}
	return chunks, nil
}

// rowText renders "header: value" pairs separated by " | ", skipping
// empty cells. Columns beyond the header width get a positional name.
func rowText(header, record []string) string {
	var parts []string
	for i, cell := range record {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		name := fmt.Sprintf("col%d", i+1)
		if i < len(header) && header[i] != "" {
			name = header[i]
		}
		parts = append(parts, name+": "+cell)
	}
	return strings.Join(parts, " | ")
}
