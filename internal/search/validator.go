package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/chunk"
	"github.com/ba3ai/Clarus-Updated-sub000/internal/provider"
)

const validatorSystemPrompt = `You judge whether a draft answer is supported by the context it was written
from. Respond with a single number between 0 and 1: 1 means every claim in the
draft is directly supported and the question is fully answered, 0 means the
draft is unsupported or the question is not answered. Output only the number.`

// Validator scores how well a draft answer is supported by the context
// it was drafted from, via a secondary model call.
type Validator struct {
	chatter provider.Chatter
}

func NewValidator(chatter provider.Chatter) *Validator {
	return &Validator{chatter: chatter}
}

// Confidence returns the model's self-reported 0-1 support score,
// clamped. Call failures and unparseable replies count as zero.
func (v *Validator) Confidence(ctx context.Context, question, draft string, chunks []chunk.Chunk) float64 {
	var b strings.Builder
	for i, ch := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, ch.Text)
	}

	reply, err := v.chatter.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: validatorSystemPrompt},
		{Role: provider.RoleUser, Content: fmt.Sprintf(
			"Question: %s\n\nDraft answer:\n%s\n\nContext used:\n%s", question, draft, b.String())},
	})
	if err != nil {
		slog.Warn("validator call failed", slog.String("error", err.Error()))
		return 0
	}

	confidence, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		// Tolerate replies like "0.8 (well supported)".
		fields := strings.Fields(strings.TrimSpace(reply))
		if len(fields) == 0 {
			return 0
		}
		confidence, err = strconv.ParseFloat(strings.Trim(fields[0], ",;"), 64)
		if err != nil {
			slog.Warn("validator reply unparseable", slog.String("reply", reply))
			return 0
		}
	}

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}
