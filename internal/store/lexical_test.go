package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/chunk"
)

func chunksOf(texts ...string) []chunk.Chunk {
	chunks := make([]chunk.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = chunk.Chunk{
			Text: text,
			Meta: chunk.Metadata{SourceID: "doc.txt", Position: i, Kind: chunk.SourceText},
		}
	}
	return chunks
}

func TestLexicalSearch_RanksTermMatchesFirst(t *testing.T) {
	// Given: a small corpus where only one chunk mentions wire fees
	idx := NewLexicalIndex(t.TempDir())
	require.NoError(t, idx.Build(chunksOf(
		"savings accounts accrue interest daily",
		"wire transfer fee is 25 dollars",
		"mobile deposits post next business day",
	)))

	// When: searching for the fee
	results := idx.Search("wire transfer fee", 10)

	// Then: the matching chunk ranks first
	require.NotEmpty(t, results)
	assert.Equal(t, 1, results[0].Pos)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestLexicalSearch_ExcludesZeroOverlap(t *testing.T) {
	idx := NewLexicalIndex(t.TempDir())
	require.NoError(t, idx.Build(chunksOf(
		"wire transfer fee",
		"completely unrelated content",
	)))

	results := idx.Search("wire fee", 10)

	// Chunks sharing no query term never appear, even with topK room.
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Pos)
}

func TestLexicalSearch_TopKTruncates(t *testing.T) {
	idx := NewLexicalIndex(t.TempDir())
	require.NoError(t, idx.Build(chunksOf(
		"fee schedule part one",
		"fee schedule part two",
		"fee schedule part three",
	)))

	results := idx.Search("fee", 2)

	assert.Len(t, results, 2)
}

func TestLexicalSearch_NonPositiveTopKReturnsAll(t *testing.T) {
	idx := NewLexicalIndex(t.TempDir())
	require.NoError(t, idx.Build(chunksOf(
		"fee one", "fee two", "fee three", "fee four",
	)))

	// topK <= 0 is the scanner's full-priority-order mode.
	results := idx.Search("fee", 0)

	assert.Len(t, results, 4)
}

func TestLexicalSearch_TieBreakKeepsStorageOrder(t *testing.T) {
	// Given: two identical chunks, so their scores tie exactly
	idx := NewLexicalIndex(t.TempDir())
	require.NoError(t, idx.Build(chunksOf("wire fee", "wire fee")))

	results := idx.Search("wire", 10)

	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Pos)
	assert.Equal(t, 1, results[1].Pos)
}

func TestLexicalSearch_RareTermOutweighsCommon(t *testing.T) {
	// Given: "fee" appears everywhere, "overdraft" in one chunk
	idx := NewLexicalIndex(t.TempDir())
	require.NoError(t, idx.Build(chunksOf(
		"fee for wire",
		"fee for overdraft",
		"fee for ach",
		"fee for checks",
	)))

	results := idx.Search("overdraft fee", 10)

	// The overdraft chunk carries rare-term idf weight and wins.
	require.NotEmpty(t, results)
	assert.Equal(t, 1, results[0].Pos)
}

func TestLexicalSearch_EmptyQueryAndEmptyIndex(t *testing.T) {
	idx := NewLexicalIndex(t.TempDir())

	assert.Empty(t, idx.Search("anything", 5))

	require.NoError(t, idx.Build(chunksOf("some content")))
	assert.Empty(t, idx.Search("", 5))
	assert.Empty(t, idx.Search("!!!", 5))
}

func TestLexicalIndex_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	idx := NewLexicalIndex(dir)
	require.NoError(t, idx.Build(chunksOf("wire transfer fee", "interest rate")))

	// When: reopening from disk
	reopened := NewLexicalIndex(dir)

	// Then: counts and ranking survive without a rebuild
	assert.Equal(t, 2, reopened.Count())
	results := reopened.Search("wire", 5)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Pos)
}

func TestLexicalIndex_CorruptCacheStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, LexicalFileName), []byte("not json"), 0o644))

	idx := NewLexicalIndex(dir)

	assert.Equal(t, 0, idx.Count())
}

func TestLexicalIndex_RebuildReplacesCache(t *testing.T) {
	dir := t.TempDir()
	idx := NewLexicalIndex(dir)
	require.NoError(t, idx.Build(chunksOf("old corpus about fees")))

	require.NoError(t, idx.Build(chunksOf("new corpus about rates", "second chunk")))

	assert.Equal(t, 2, idx.Count())
	assert.Empty(t, idx.Search("fees", 5))
	assert.Len(t, idx.Search("rates", 5), 1)
}
