package chunk

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/errors"
)

func TestTabular_OneChunkPerRow(t *testing.T) {
	csv := "account,balance,currency\nchecking,1500.00,EUR\nsavings,9800.50,EUR\n"

	chunks, err := Tabular("accounts.csv", "accounts", strings.NewReader(csv), ',')

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "account: checking | balance: 1500.00 | currency: EUR", chunks[0].Text)
	assert.Equal(t, Metadata{
		SourceID: "accounts.csv",
		Section:  "accounts",
		Position: 1,
		Kind:     SourceTabular,
	}, chunks[0].Meta)
	assert.Equal(t, 2, chunks[1].Meta.Position)
}

func TestTabular_SkipsEmptyRowsAndCells(t *testing.T) {
	csv := "name,fee\n,\nwire transfer,0.5%\n"

	chunks, err := Tabular("fees.csv", "fees", strings.NewReader(csv), ',')

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "name: wire transfer | fee: 0.5%", chunks[0].Text)
	// Row numbering counts real rows, so the kept row is row 2.
	assert.Equal(t, 2, chunks[0].Meta.Position)
}

func TestTabular_RaggedRowsGetPositionalHeaders(t *testing.T) {
	csv := "a,b\n1,2,3\n"

	chunks, err := Tabular("x.csv", "x", strings.NewReader(csv), ',')

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a: 1 | b: 2 | col3: 3", chunks[0].Text)
}

func TestTabular_EmptyFile(t *testing.T) {
	chunks, err := Tabular("empty.csv", "empty", strings.NewReader(""), ',')
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestText_WindowsOverlap(t *testing.T) {
	content := strings.Repeat("abcdefghij", 30) // 300 chars

	chunks := Text("notes.txt", content, 100, 20)

	require.NotEmpty(t, chunks)
	// Step is 80, so windows start at 0, 80, 160, 240.
	assert.Len(t, chunks, 4)
	for i, c := range chunks {
		assert.Equal(t, i, c.Meta.Position)
		assert.Equal(t, SourceText, c.Meta.Kind)
		assert.LessOrEqual(t, len(c.Text), 100)
	}
	// Adjacent windows share the overlap region.
	first := chunks[0].Text
	second := chunks[1].Text
	assert.Equal(t, first[len(first)-20:], second[:20])
}

func TestText_WindowsKeepRunesIntact(t *testing.T) {
	// Given: multi-byte content where naive byte windows would split
	// characters at every boundary
	content := strings.Repeat("€", 100) // 300 bytes, 3 each

	chunks := Text("euro.txt", content, 100, 20)

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Text), "window %d split a rune", c.Meta.Position)
	}
}

func TestText_ShortContentSingleChunk(t *testing.T) {
	chunks := Text("note.txt", "  short note  ", 100, 20)

	require.Len(t, chunks, 1)
	assert.Equal(t, "short note", chunks[0].Text)
}

func TestText_Empty(t *testing.T) {
	assert.Empty(t, Text("x.txt", "   ", 100, 20))
}

func TestParseFile_DispatchesByExtension(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "rows.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("h1,h2\nv1,v2\n"), 0o644))
	txtPath := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("plain prose body"), 0o644))

	csvChunks, err := ParseFile(csvPath)
	require.NoError(t, err)
	require.Len(t, csvChunks, 1)
	assert.Equal(t, SourceTabular, csvChunks[0].Meta.Kind)
	assert.Equal(t, "rows.csv", csvChunks[0].Meta.SourceID)

	txtChunks, err := ParseFile(txtPath)
	require.NoError(t, err)
	require.Len(t, txtChunks, 1)
	assert.Equal(t, SourceText, txtChunks[0].Meta.Kind)
}

func TestParseFile_MissingFileIsParseFailure(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "gone.csv"))

	require.Error(t, err)
	assert.Equal(t, errors.KindParseFailure, errors.KindOf(err))
}

func TestMetadata_Citation(t *testing.T) {
	tab := Metadata{SourceID: "fees.csv", Section: "fees", Position: 3, Kind: SourceTabular}
	assert.Equal(t, "fees.csv (fees, row 3)", tab.Citation())

	txt := Metadata{SourceID: "terms.txt", Position: 0, Kind: SourceText}
	assert.Equal(t, "terms.txt (part 1)", txt.Citation())
}
