package chunk

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/errors"
)

// ParseFile reads one raw document and chunks it by file type.
// Failures are classified as ParseFailure so sync can skip the file and
// continue; nothing is written for a file that fails to parse.
func ParseFile(path string) ([]Chunk, error) {
	const op = "chunk.parse"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.KindParseFailure, op, err)
	}

	sourceID := filepath.Base(path)
	section := strings.TrimSuffix(sourceID, filepath.Ext(sourceID))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		chunks, err := Tabular(sourceID, section, strings.NewReader(string(data)), ',')
		if err != nil {
			return nil, errors.New(errors.KindParseFailure, op, err)
		}
		return chunks, nil
	case ".tsv":
		chunks, err := Tabular(sourceID, section, strings.NewReader(string(data)), '\t')
		if err != nil {
			return nil, errors.New(errors.KindParseFailure, op, err)
		}
		return chunks, nil
	default:
		// Everything else is treated as freeform text.
		return Text(sourceID, string(data), DefaultWindowSize, DefaultWindowOverlap), nil
	}
}
