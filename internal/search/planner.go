package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/provider"
)

// DefaultFanOut bounds how many queries one question expands into,
// counting the original.
const DefaultFanOut = 4

const plannerSystemPrompt = `You rewrite user questions as alternative search queries.
Given a question, produce short alternative phrasings that could match the same
information using different words. Output one query per line with no numbering,
no quotes and no commentary.`

// Planner expands a question into alternate search queries via one
// lightweight chat call.
type Planner struct {
	chatter provider.Chatter
	fanOut  int
}

// NewPlanner creates a planner producing at most fanOut queries
// (original included).
func NewPlanner(chatter provider.Chatter, fanOut int) *Planner {
	if fanOut <= 0 {
		fanOut = DefaultFanOut
	}
	return &Planner{chatter: chatter, fanOut: fanOut}
}

// Expand returns up to fanOut queries with the original question always
// first. Planner failure is never fatal: any error degrades to just the
// original question.
func (p *Planner) Expand(ctx context.Context, question string) []string {
	queries := []string{question}
	if p.fanOut == 1 || p.chatter == nil {
		return queries
	}

	reply, err := p.chatter.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: plannerSystemPrompt},
		{Role: provider.RoleUser, Content: fmt.Sprintf(
			"Question: %s\n\nWrite up to %d alternative queries.", question, p.fanOut-1)},
	})
	if err != nil {
		slog.Debug("query expansion failed, using original only",
			slog.String("error", err.Error()))
		return queries
	}

	seen := map[string]bool{normalizeQuery(question): true}
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || seen[normalizeQuery(line)] {
			continue
		}
		seen[normalizeQuery(line)] = true
		queries = append(queries, line)
		if len(queries) == p.fanOut {
			break
		}
	}
	return queries
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}
