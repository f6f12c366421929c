// Package provider implements the rate-limited, retrying client for the
// external embedding/chat API, plus token-aware batching and bisection.
package provider

import (
	"context"
	"time"
	"unicode/utf8"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Embedder produces dense vectors for texts.
// Implementations must return vectors in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Chatter answers a prompt with optional history.
type Chatter interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Config configures the provider client.
type Config struct {
	BaseURL    string
	APIKey     string
	EmbedModel string
	ChatModel  string

	// RequestTimeout bounds each HTTP call; expiry counts as transient.
	RequestTimeout time.Duration

	// ChatMinInterval is the global minimum spacing between chat calls.
	ChatMinInterval time.Duration

	// EmbedRatePerSec paces embedding requests (0 disables pacing).
	EmbedRatePerSec float64

	MaxConcurrency int
	MaxBatchItems  int
	MaxBatchTokens int
	MaxItemTokens  int
}

// EstimateTokens approximates the token count of a text as ceil(chars/4).
// The budgets in this package are deliberately conservative so the
// approximation never has to be exact.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// TruncateTokens cuts text down to roughly maxTokens, backing off to a
// rune boundary so the cut never splits a multi-byte character.
func TruncateTokens(text string, maxTokens int) string {
	maxChars := maxTokens * 4
	if len(text) <= maxChars {
		return text
	}
	for maxChars > 0 && !utf8.RuneStart(text[maxChars]) {
		maxChars--
	}
	return text[:maxChars]
}
