// Package search implements the retrieval side of the engine: multi-query
// expansion, hybrid BM25+vector retrieval fused by reciprocal rank, answer
// composition with a map-reduce fallback, and the progressive scanner used
// when top-k evidence is not good enough.
package search

import "github.com/ba3ai/Clarus-Updated-sub000/internal/chunk"

// ScoredChunk is one retrieved chunk with its fused relevance score.
type ScoredChunk struct {
	Pos   int
	Chunk chunk.Chunk
	Score float64
}
