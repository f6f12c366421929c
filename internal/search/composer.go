package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/chunk"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/errors"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/provider"
)

const composerSystemPrompt = `You answer questions strictly from the numbered context passages provided.
Cite the passages you used by their index, like [2]. If the context does not
contain the information needed, say exactly what is missing instead of guessing.
Never use knowledge beyond the given context.`

const shardSystemPrompt = `Extract only the facts from the passages below that are relevant to the
question. Output a terse bullet list. If nothing is relevant, output "none".`

const reduceSystemPrompt = `You answer questions from extracted fact summaries. The summaries below were
pulled from a larger document set. Answer using only them, citing passage
indices where the summaries carry them. If they are insufficient, say what is
missing.`

// ComposerConfig bounds prompt size and map-reduce behavior.
type ComposerConfig struct {
	ContextTokenBudget int // greedy packing budget for the direct prompt
	ShardTokenBudget   int // per-shard budget in the map-reduce fallback
	ShardConcurrency   int // parallel shard summarization calls
}

// Composer turns a question plus context chunks into an answer. Context
// that overflows the model window falls back to map-reduce: summarize
// shards in parallel, then reduce the summaries in one final call.
type Composer struct {
	chatter provider.Chatter
	cfg     ComposerConfig
}

func NewComposer(chatter provider.Chatter, cfg ComposerConfig) *Composer {
	if cfg.ShardConcurrency <= 0 {
		cfg.ShardConcurrency = 2
	}
	return &Composer{chatter: chatter, cfg: cfg}
}

// Answer composes the prompt and asks the model. Chunks are greedily
// packed in given order until the token budget would be exceeded;
// overflow is truncation, not an error.
func (c *Composer) Answer(ctx context.Context, question string, chunks []chunk.Chunk) (string, error) {
	packed := c.pack(chunks, c.cfg.ContextTokenBudget)

	answer, err := c.chatter.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: composerSystemPrompt},
		{Role: provider.RoleUser, Content: renderPrompt(question, packed, 0)},
	})
	if err == nil {
		return answer, nil
	}

	kind := errors.KindOf(err)
	if kind != errors.KindContextTooLarge && kind != errors.KindRateLimited {
		return "", err
	}

	slog.Info("direct answer overflowed, falling back to map-reduce",
		slog.String("kind", string(kind)), slog.Int("chunks", len(packed)))
	return c.mapReduce(ctx, question, packed)
}

// pack keeps chunks in order while their cumulative token estimate stays
// within budget. The first chunk is always kept so the prompt is never
// empty.
func (c *Composer) pack(chunks []chunk.Chunk, budget int) []chunk.Chunk {
	if budget <= 0 {
		return chunks
	}
	var packed []chunk.Chunk
	used := 0
	for _, ch := range chunks {
		cost := provider.EstimateTokens(ch.Text)
		if len(packed) > 0 && used+cost > budget {
			break
		}
		packed = append(packed, ch)
		used += cost
	}
	return packed
}

// mapReduce splits chunks into shards bounded by the shard token budget,
// summarizes each shard in parallel via the shared chat client, then
// reduces the concatenated summaries. A failed shard is dropped; only
// all shards failing is fatal.
func (c *Composer) mapReduce(ctx context.Context, question string, chunks []chunk.Chunk) (string, error) {
	shards := c.shard(chunks)

	summaries := make([]string, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.ShardConcurrency)
	for i, shard := range shards {
		g.Go(func() error {
			summary, err := c.chatter.Chat(gctx, []provider.Message{
				{Role: provider.RoleSystem, Content: shardSystemPrompt},
				{Role: provider.RoleUser, Content: renderPrompt(question, shard.chunks, shard.offset)},
			})
			if err != nil {
				slog.Warn("shard summarization failed",
					slog.Int("shard", i), slog.String("error", err.Error()))
				return nil
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var usable []string
	for _, s := range summaries {
		s = strings.TrimSpace(s)
		if s != "" && !strings.EqualFold(s, "none") {
			usable = append(usable, s)
		}
	}
	if len(usable) == 0 {
		return "", errors.Newf(errors.KindInternal, "composer.reduce",
			"all %d shards failed or were empty", len(shards))
	}

	return c.chatter.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: reduceSystemPrompt},
		{Role: provider.RoleUser, Content: fmt.Sprintf(
			"Question: %s\n\nExtracted facts:\n%s", question, strings.Join(usable, "\n\n"))},
	})
}

type contextShard struct {
	chunks []chunk.Chunk
	offset int // index of the first chunk, keeps citations stable
}

func (c *Composer) shard(chunks []chunk.Chunk) []contextShard {
	budget := c.cfg.ShardTokenBudget
	if budget <= 0 {
		budget = c.cfg.ContextTokenBudget
	}

	var shards []contextShard
	var current []chunk.Chunk
	used, offset := 0, 0
	for i, ch := range chunks {
		cost := provider.EstimateTokens(ch.Text)
		if len(current) > 0 && used+cost > budget {
			shards = append(shards, contextShard{chunks: current, offset: offset})
			current, used, offset = nil, 0, i
		}
		current = append(current, ch)
		used += cost
	}
	if len(current) > 0 {
		shards = append(shards, contextShard{chunks: current, offset: offset})
	}
	return shards
}

// renderPrompt numbers chunks starting at indexOffset+1 so shard prompts
// keep the same citation indices as the direct prompt.
func renderPrompt(question string, chunks []chunk.Chunk, indexOffset int) string {
	var b strings.Builder
	b.WriteString("Context passages:\n")
	for i, ch := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", indexOffset+i+1, ch.Meta.Citation(), ch.Text)
	}
	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}
