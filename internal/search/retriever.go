package search

import (
	"context"
	"log/slog"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/chunk"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/provider"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/store"
)

// RetrieverConfig tunes the hybrid retriever.
type RetrieverConfig struct {
	TopKVector  int // per-query vector hits
	TopKLexical int // per-query BM25 hits
	RRFConstant int
	MaxResults  int // fused result cap
}

// Corpus is the read view the retriever and scanner operate on.
type Corpus struct {
	Chunks  []chunk.Chunk
	Lexical *store.LexicalIndex
	Vectors *store.VectorIndex
}

// Retriever runs multi-query hybrid retrieval: every expanded query is
// searched through both modalities and all ranked lists are fused with
// reciprocal rank fusion.
type Retriever struct {
	planner  *Planner
	embedder provider.Embedder
	cfg      RetrieverConfig
}

// RetrieveResult carries the fused hits plus how many queries the
// planner actually produced, which callers use to label the answer mode.
type RetrieveResult struct {
	Hits    []ScoredChunk
	Queries []string
}

func NewRetriever(planner *Planner, embedder provider.Embedder, cfg RetrieverConfig) *Retriever {
	return &Retriever{planner: planner, embedder: embedder, cfg: cfg}
}

// Retrieve expands question, searches both indexes per query and fuses
// the ranked lists. Embedding failure degrades to lexical-only retrieval
// rather than failing the whole call.
func (r *Retriever) Retrieve(ctx context.Context, question string, corpus *Corpus) (RetrieveResult, error) {
	result := RetrieveResult{Queries: r.planner.Expand(ctx, question)}
	if len(corpus.Chunks) == 0 {
		return result, nil
	}

	var lists [][]int
	for _, q := range result.Queries {
		hits := corpus.Lexical.Search(q, r.cfg.TopKLexical)
		positions := make([]int, len(hits))
		for i, h := range hits {
			positions[i] = h.Pos
		}
		lists = append(lists, positions)
	}

	queryVecs, err := r.embedder.EmbedBatch(ctx, result.Queries)
	if err != nil {
		slog.Warn("query embedding failed, lexical-only retrieval",
			slog.String("error", err.Error()))
	} else {
		for _, vec := range queryVecs {
			if len(vec) == 0 {
				continue
			}
			hits, err := corpus.Vectors.Search(vec, r.cfg.TopKVector)
			if err != nil {
				slog.Warn("vector search failed", slog.String("error", err.Error()))
				continue
			}
			positions := make([]int, len(hits))
			for i, h := range hits {
				positions[i] = h.Pos
			}
			lists = append(lists, positions)
		}
	}

	fused := fuseRRF(lists, r.cfg.RRFConstant)
	if r.cfg.MaxResults > 0 && len(fused) > r.cfg.MaxResults {
		fused = fused[:r.cfg.MaxResults]
	}

	result.Hits = make([]ScoredChunk, 0, len(fused))
	for _, hit := range fused {
		if hit.pos < 0 || hit.pos >= len(corpus.Chunks) {
			continue
		}
		result.Hits = append(result.Hits, ScoredChunk{
			Pos:   hit.pos,
			Chunk: corpus.Chunks[hit.pos],
			Score: hit.score,
		})
	}
	return result, nil
}
