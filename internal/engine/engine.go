// Package engine exposes the document-search surface the rest of the
// application calls: sync, ask and rebuild, all tenant-scoped.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/chunk"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/config"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/errors"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/index"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/provider"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/search"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/telemetry"
)

// Mode labels how an answer was produced.
type Mode string

const (
	// ModeTopK means single-query retrieval answered the question.
	ModeTopK Mode = "topk"
	// ModeHybrid means multi-query hybrid retrieval answered it.
	ModeHybrid Mode = "hybrid"
	// ModeScanEarlyStop means the progressive scanner stopped early on a
	// confident batch.
	ModeScanEarlyStop Mode = "scan_earlystop"
	// ModeScanExhausted means the scanner examined the whole stream and
	// returned its best draft.
	ModeScanExhausted Mode = "scan_exhausted"
	// ModeMiss means no answer could be produced.
	ModeMiss Mode = "miss"
)

// ContextChunk is one supporting chunk in an answer.
type ContextChunk struct {
	Text     string         `json:"text"`
	Metadata chunk.Metadata `json:"metadata"`
	Score    float64        `json:"score"`
}

// Answer is the engine's response to one question.
type Answer struct {
	Answer     string         `json:"answer"`
	Mode       Mode           `json:"mode"`
	Confidence float64        `json:"confidence"`
	Context    []ContextChunk `json:"context"`
}

// SyncReport is the result of one sync_and_index call.
type SyncReport struct {
	AddedChunks  int  `json:"added_chunks"`
	FilesScanned int  `json:"files_scanned"`
	TotalChunks  int  `json:"total_chunks"`
	Rebuilt      bool `json:"rebuilt"`
}

const missAnswerNoCorpus = "No documents are indexed for this tenant yet. Upload documents and sync before asking."
const missAnswerFailure = "No answer could be produced for this question. Please try again."

// Engine wires retrieval, composition and scanning over per-tenant
// index state. One Engine serves all tenants of a process.
type Engine struct {
	cfg       *config.Config
	embedder  provider.Embedder
	chatter   provider.Chatter
	retriever *search.Retriever
	composer  *search.Composer
	validator *search.Validator
	scanner   *search.Scanner
	recorder  *telemetry.Recorder
}

// New builds an engine from a config and a provider client pair. The
// recorder may be nil to disable telemetry.
func New(cfg *config.Config, embedder provider.Embedder, chatter provider.Chatter, recorder *telemetry.Recorder) *Engine {
	planner := search.NewPlanner(chatter, cfg.Retrieval.FanOut)
	composer := search.NewComposer(chatter, search.ComposerConfig{
		ContextTokenBudget: cfg.Composer.ContextTokenBudget,
		ShardTokenBudget:   cfg.Composer.ShardTokenBudget,
		ShardConcurrency:   cfg.Composer.ShardConcurrency,
	})
	validator := search.NewValidator(chatter)
	return &Engine{
		cfg:      cfg,
		embedder: embedder,
		chatter:  chatter,
		retriever: search.NewRetriever(planner, embedder, search.RetrieverConfig{
			TopKVector:  cfg.Retrieval.TopKVector,
			TopKLexical: cfg.Retrieval.TopKLexical,
			RRFConstant: cfg.Retrieval.RRFConstant,
			MaxResults:  cfg.Retrieval.MaxResults,
		}),
		composer:  composer,
		validator: validator,
		scanner: search.NewScanner(composer, validator, search.ScannerConfig{
			BatchCharBudget:     cfg.Scanner.BatchCharBudget,
			ConfidenceThreshold: cfg.Scanner.ConfidenceThreshold,
			MaxBatches:          cfg.Scanner.MaxBatches,
		}),
		recorder: recorder,
	}
}

func (e *Engine) maintainer(tenant string) (*index.Maintainer, error) {
	dir, err := e.cfg.TenantDir(tenant)
	if err != nil {
		return nil, err
	}
	return index.NewMaintainer(dir, e.embedder, e.cfg.Storage.PruneOnUpdate)
}

// DocsDir returns where a tenant's raw documents belong.
func (e *Engine) DocsDir(tenant string) (string, error) {
	m, err := e.maintainer(tenant)
	if err != nil {
		return "", err
	}
	return m.DocsDir(), nil
}

// SyncAndIndex ingests new or changed documents for the tenant and
// brings both indexes up to date. Call after any upload or delete.
func (e *Engine) SyncAndIndex(ctx context.Context, tenant string) (SyncReport, error) {
	m, err := e.maintainer(tenant)
	if err != nil {
		return SyncReport{}, err
	}
	_, report, err := m.EnsureBuilt(ctx)
	if err != nil {
		return SyncReport{}, err
	}
	return SyncReport{
		AddedChunks:  report.Sync.AddedChunks,
		FilesScanned: report.Sync.FilesScanned,
		TotalChunks:  report.ChunkCount,
		Rebuilt:      report.Rebuilt,
	}, nil
}

// Rebuild discards the tenant's derived indexes and re-embeds the whole
// corpus. Used after deletions or format changes.
func (e *Engine) Rebuild(ctx context.Context, tenant string) (SyncReport, error) {
	m, err := e.maintainer(tenant)
	if err != nil {
		return SyncReport{}, err
	}
	_, report, err := m.Rebuild(ctx)
	if err != nil {
		return SyncReport{}, err
	}
	return SyncReport{
		AddedChunks:  report.Sync.AddedChunks,
		FilesScanned: report.Sync.FilesScanned,
		TotalChunks:  report.ChunkCount,
		Rebuilt:      report.Rebuilt,
	}, nil
}

// Ask answers a question from the tenant's corpus. Fatal failures come
// back as a miss-mode answer rather than an error; the only error
// returned is context cancellation.
func (e *Engine) Ask(ctx context.Context, tenant, question string) (*Answer, error) {
	start := time.Now()
	answer, queries := e.ask(ctx, tenant, question)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := e.recorder.Record(telemetry.Event{
		Tenant:     tenant,
		Mode:       string(answer.Mode),
		Confidence: answer.Confidence,
		LatencyMS:  time.Since(start).Milliseconds(),
		Queries:    queries,
		Chunks:     len(answer.Context),
	}); err != nil {
		slog.Warn("telemetry record failed", slog.String("error", err.Error()))
	}
	return answer, nil
}

func (e *Engine) ask(ctx context.Context, tenant, question string) (*Answer, int) {
	m, err := e.maintainer(tenant)
	if err != nil {
		return e.miss(missAnswerFailure, "tenant setup", err), 0
	}

	snap, _, err := m.EnsureBuilt(ctx)
	if err != nil {
		return e.miss(missAnswerFailure, "index maintenance", err), 0
	}
	if len(snap.Chunks) == 0 {
		return &Answer{Answer: missAnswerNoCorpus, Mode: ModeMiss, Context: []ContextChunk{}}, 0
	}

	corpus := &search.Corpus{Chunks: snap.Chunks, Lexical: snap.Lexical, Vectors: snap.Vectors}

	retrieved, err := e.retriever.Retrieve(ctx, question, corpus)
	if err != nil {
		return e.miss(missAnswerFailure, "retrieval", err), 0
	}
	queries := len(retrieved.Queries)

	var direct *search.ScanResult
	if len(retrieved.Hits) > 0 {
		chunks := make([]chunk.Chunk, len(retrieved.Hits))
		for i, hit := range retrieved.Hits {
			chunks[i] = hit.Chunk
		}
		draft, err := e.composer.Answer(ctx, question, chunks)
		if err != nil {
			slog.Warn("direct answer failed, escalating to scanner",
				slog.String("error", err.Error()))
		} else {
			direct = &search.ScanResult{
				Answer:     draft,
				Chunks:     retrieved.Hits,
				Confidence: e.validator.Confidence(ctx, question, draft, chunks),
			}
			if direct.Confidence >= e.cfg.Scanner.ConfidenceThreshold {
				mode := ModeHybrid
				if queries <= 1 {
					mode = ModeTopK
				}
				return e.answerFrom(direct, mode), queries
			}
			slog.Info("retrieval answer below threshold, escalating to scanner",
				slog.Float64("confidence", direct.Confidence),
				slog.Float64("threshold", e.cfg.Scanner.ConfidenceThreshold))
		}
	}

	scanned, err := e.scanner.Scan(ctx, question, corpus)
	if err != nil {
		if direct != nil {
			// Best effort: the unconfident retrieval draft beats a miss.
			mode := ModeHybrid
			if queries <= 1 {
				mode = ModeTopK
			}
			return e.answerFrom(direct, mode), queries
		}
		if errors.HasKind(err, errors.KindNoCorpus) {
			return &Answer{Answer: missAnswerNoCorpus, Mode: ModeMiss, Context: []ContextChunk{}}, queries
		}
		return e.miss(missAnswerFailure, "progressive scan", err), queries
	}

	best := scanned
	mode := ModeScanExhausted
	if scanned.EarlyStopped {
		mode = ModeScanEarlyStop
	}
	if direct != nil && direct.Confidence > scanned.Confidence {
		best = direct
		mode = ModeHybrid
		if queries <= 1 {
			mode = ModeTopK
		}
	}
	return e.answerFrom(best, mode), queries
}

func (e *Engine) answerFrom(result *search.ScanResult, mode Mode) *Answer {
	ctxChunks := make([]ContextChunk, len(result.Chunks))
	for i, sc := range result.Chunks {
		ctxChunks[i] = ContextChunk{Text: sc.Chunk.Text, Metadata: sc.Chunk.Meta, Score: sc.Score}
	}
	return &Answer{
		Answer:     result.Answer,
		Mode:       mode,
		Confidence: result.Confidence,
		Context:    ctxChunks,
	}
}

func (e *Engine) miss(message, stage string, err error) *Answer {
	slog.Error("ask failed",
		slog.String("stage", stage),
		slog.String("kind", string(errors.KindOf(err))),
		slog.String("error", err.Error()))
	return &Answer{Answer: message, Mode: ModeMiss, Context: []ContextChunk{}}
}
