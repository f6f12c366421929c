package provider

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/errors"
)

// BatchEmbedder wraps a raw Embedder with input cleaning, token-aware
// packing, a bounded worker pool, and the backoff/bisect retry policy.
//
// Output vectors are always returned in input order: each batch carries its
// index and results are stitched back by position, regardless of which
// worker ran it. Empty inputs embed to zero vectors so alignment holds.
type BatchEmbedder struct {
	inner Embedder
	cfg   Config
	retry errors.RetryConfig
}

var _ Embedder = (*BatchEmbedder)(nil)

// NewBatchEmbedder creates a batching embedder around inner.
func NewBatchEmbedder(inner Embedder, cfg Config) *BatchEmbedder {
	if cfg.MaxBatchItems <= 0 {
		cfg.MaxBatchItems = 64
	}
	if cfg.MaxBatchTokens <= 0 {
		cfg.MaxBatchTokens = 8000
	}
	if cfg.MaxItemTokens <= 0 {
		cfg.MaxItemTokens = 2000
	}
	if cfg.MaxItemTokens > cfg.MaxBatchTokens {
		cfg.MaxItemTokens = cfg.MaxBatchTokens
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	return &BatchEmbedder{inner: inner, cfg: cfg, retry: errors.DefaultRetryConfig()}
}

// Model returns the underlying embedding model identifier.
func (b *BatchEmbedder) Model() string { return b.inner.Model() }

// EmbedBatch embeds texts, preserving input order.
func (b *BatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// Clean: empty items are embedded as zero vectors, oversized items are
	// truncated to the per-item token budget.
	type item struct {
		pos  int // position in the caller's slice
		text string
	}
	var cleaned []item
	for i, t := range texts {
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			continue
		}
		cleaned = append(cleaned, item{pos: i, text: TruncateTokens(trimmed, b.cfg.MaxItemTokens)})
	}

	results := make([][]float32, len(texts))

	if len(cleaned) > 0 {
		// Pack into batches bounded by item count and aggregate tokens.
		// A batch never straddles the token budget; a single item always
		// fits because items are pre-truncated to MaxItemTokens.
		var batches [][]item
		var current []item
		currentTokens := 0
		for _, it := range cleaned {
			tokens := EstimateTokens(it.text)
			if len(current) > 0 &&
				(len(current) >= b.cfg.MaxBatchItems || currentTokens+tokens > b.cfg.MaxBatchTokens) {
				batches = append(batches, current)
				current = nil
				currentTokens = 0
			}
			current = append(current, it)
			currentTokens += tokens
		}
		if len(current) > 0 {
			batches = append(batches, current)
		}

		// Dispatch batches across the worker pool; each batch writes into
		// its own result slot so no ordering depends on worker scheduling.
		batchVectors := make([][][]float32, len(batches))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.cfg.MaxConcurrency)
		for bi, batch := range batches {
			g.Go(func() error {
				batchTexts := make([]string, len(batch))
				for i, it := range batch {
					batchTexts[i] = it.text
				}
				vecs, err := b.embedWithPolicy(gctx, batchTexts)
				if err != nil {
					return err
				}
				batchVectors[bi] = vecs
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for bi, batch := range batches {
			for i, it := range batch {
				results[it.pos] = batchVectors[bi][i]
			}
		}
	}

	fillZeroVectors(results)
	return results, nil
}

// embedWithPolicy embeds one batch applying the explicit retry policy:
// backoff on transient/rate-limit failures, recursive bisection on
// invalid-input failures, anything else fatal. A single poison item that
// still fails after bisection is replaced by a zero vector instead of
// discarding the batch.
func (b *BatchEmbedder) embedWithPolicy(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := errors.RetryWithResult(ctx, b.retry, func() ([][]float32, error) {
		return b.inner.EmbedBatch(ctx, texts)
	})
	if err == nil {
		return vecs, nil
	}

	if errors.Decide(err) == errors.DecisionBisect {
		if len(texts) == 1 {
			slog.Warn("isolated poison item, substituting zero vector",
				slog.Int("text_len", len(texts[0])),
				slog.String("error", err.Error()))
			return [][]float32{nil}, nil
		}
		mid := len(texts) / 2
		left, err := b.embedWithPolicy(ctx, texts[:mid])
		if err != nil {
			return nil, err
		}
		right, err := b.embedWithPolicy(ctx, texts[mid:])
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	}

	return nil, err
}

// fillZeroVectors replaces nil entries with zero vectors matching the
// dimension of the other results, keeping output aligned with input.
func fillZeroVectors(vectors [][]float32) {
	dims := 0
	for _, v := range vectors {
		if len(v) > 0 {
			dims = len(v)
			break
		}
	}
	for i, v := range vectors {
		if v == nil {
			vectors[i] = make([]float32, dims)
		}
	}
}
