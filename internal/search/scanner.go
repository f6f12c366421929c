package search

import (
	"context"
	"log/slog"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/chunk"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/errors"
)

// ScannerConfig tunes progressive corpus scanning.
type ScannerConfig struct {
	BatchCharBudget     int     // characters accumulated per batch
	ConfidenceThreshold float64 // early-stop gate
	MaxBatches          int     // hard cap, 0 means unlimited
}

// ScanResult is the outcome of one progressive scan.
type ScanResult struct {
	Answer       string
	Chunks       []ScoredChunk
	Confidence   float64
	EarlyStopped bool // false means the stream was exhausted
}

// Scanner walks the corpus in lexical-priority order, drafting and
// validating an answer per batch until one is confident enough. It is
// the expensive fallback for questions top-k retrieval cannot serve.
type Scanner struct {
	composer  *Composer
	validator *Validator
	cfg       ScannerConfig
}

func NewScanner(composer *Composer, validator *Validator, cfg ScannerConfig) *Scanner {
	if cfg.BatchCharBudget <= 0 {
		cfg.BatchCharBudget = 8000
	}
	return &Scanner{composer: composer, validator: validator, cfg: cfg}
}

// Scan streams batches until the confidence threshold or a limit is hit.
// The best draft seen so far always wins, so a weak later batch never
// replaces a stronger earlier one. Per-batch failures skip the batch;
// only producing no draft at all is an error.
func (s *Scanner) Scan(ctx context.Context, question string, corpus *Corpus) (*ScanResult, error) {
	if len(corpus.Chunks) == 0 {
		return nil, errors.Newf(errors.KindNoCorpus, "scanner.scan", "no chunks to scan")
	}

	best := &ScanResult{Confidence: -1}
	batches := 0

	for batch := range s.batches(corpus, question) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batches++

		chunks := make([]chunk.Chunk, len(batch))
		for i, sc := range batch {
			chunks[i] = sc.Chunk
		}

		draft, err := s.composer.Answer(ctx, question, chunks)
		if err != nil {
			slog.Warn("scan batch draft failed",
				slog.Int("batch", batches), slog.String("error", err.Error()))
			continue
		}

		confidence := s.validator.Confidence(ctx, question, draft, chunks)
		slog.Debug("scan batch evaluated",
			slog.Int("batch", batches),
			slog.Int("chunks", len(batch)),
			slog.Float64("confidence", confidence))

		if confidence > best.Confidence {
			best = &ScanResult{Answer: draft, Chunks: batch, Confidence: confidence}
		}

		if best.Confidence >= s.cfg.ConfidenceThreshold {
			best.EarlyStopped = true
			return best, nil
		}
		if s.cfg.MaxBatches > 0 && batches >= s.cfg.MaxBatches {
			best.EarlyStopped = true
			return best, nil
		}
	}

	if best.Confidence < 0 {
		return nil, errors.Newf(errors.KindInternal, "scanner.scan",
			"no batch produced a draft after %d batches", batches)
	}
	return best, nil
}

// batches yields the corpus in lexical-priority order: BM25-ranked hits
// for the question first in rank order, then every remaining chunk in
// storage order, grouped by the character budget.
func (s *Scanner) batches(corpus *Corpus, question string) func(yield func([]ScoredChunk) bool) {
	ranked := corpus.Lexical.Search(question, 0)

	order := make([]ScoredChunk, 0, len(corpus.Chunks))
	seen := make(map[int]bool, len(ranked))
	for _, hit := range ranked {
		if hit.Pos >= len(corpus.Chunks) {
			continue
		}
		seen[hit.Pos] = true
		order = append(order, ScoredChunk{Pos: hit.Pos, Chunk: corpus.Chunks[hit.Pos], Score: hit.Score})
	}
	for pos, ch := range corpus.Chunks {
		if !seen[pos] {
			order = append(order, ScoredChunk{Pos: pos, Chunk: ch})
		}
	}

	return func(yield func([]ScoredChunk) bool) {
		var batch []ScoredChunk
		chars := 0
		for _, sc := range order {
			batch = append(batch, sc)
			chars += len(sc.Chunk.Text)
			if chars >= s.cfg.BatchCharBudget {
				if !yield(batch) {
					return
				}
				batch, chars = nil, 0
			}
		}
		if len(batch) > 0 {
			yield(batch)
		}
	}
}
