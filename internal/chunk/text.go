package chunk

import (
	"strings"
	"unicode/utf8"
)

// Default window geometry for freeform text.
const (
	DefaultWindowSize    = 1200
	DefaultWindowOverlap = 200
)

// Text splits freeform content into fixed-size character windows with
// overlap. Windows advance by (size - overlap) so every boundary region
// appears in two adjacent chunks.
func Text(sourceID, content string, size, overlap int) []Chunk {
	if size <= 0 {
		size = DefaultWindowSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultWindowOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return []Chunk{}
	}

	step := size - overlap
	var chunks []Chunk
	for start, idx := 0, 0; start < len(content); start, idx = start+step, idx+1 {
		lo := runeFloor(content, start)
		end := start + size
		if end > len(content) {
			end = len(content)
		} else {
			end = runeFloor(content, end)
		}
		window := strings.TrimSpace(content[lo:end])
		if window != "" {
			chunks = append(chunks, Chunk{
				Text: window,
				Meta: Metadata{
					SourceID: sourceID,
					Position: idx,
					Kind:     SourceText,
				},
			})
		}
		if end == len(content) {
			break
		}
	}
	return chunks
}

// runeFloor backs i up to the start of the rune containing it, so window
// boundaries never slice a multi-byte character in half.
func runeFloor(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
