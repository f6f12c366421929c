package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/errors"
)

// Client speaks an OpenAI-compatible HTTP API:
// POST {base}/embeddings and POST {base}/chat/completions.
type Client struct {
	httpClient *http.Client
	cfg        Config
	gate       *RateGate
	pacer      *rate.Limiter
	retry      errors.RetryConfig
}

// Compile-time interface checks.
var (
	_ Embedder = (*Client)(nil)
	_ Chatter  = (*Client)(nil)
)

// NewClient creates a provider client. The rate gate applies to chat calls
// only; embedding requests are paced by a token bucket instead.
func NewClient(cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	pacer := rate.NewLimiter(rate.Inf, 1)
	if cfg.EmbedRatePerSec > 0 {
		pacer = rate.NewLimiter(rate.Limit(cfg.EmbedRatePerSec), 1)
	}

	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxConcurrency * 2,
				MaxIdleConnsPerHost: cfg.MaxConcurrency * 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		cfg:   cfg,
		gate:  NewRateGate(cfg.ChatMinInterval),
		pacer: pacer,
		retry: errors.DefaultRetryConfig(),
	}
}

// Model returns the embedding model identifier.
func (c *Client) Model() string { return c.cfg.EmbedModel }

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// EmbedBatch issues one embeddings request for the given texts.
// It performs no cleaning, packing or retries; BatchEmbedder owns those.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "provider.embed"

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	var resp embeddingsResponse
	err := c.post(ctx, op, "/embeddings", embeddingsRequest{
		Model: c.cfg.EmbedModel,
		Input: texts,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, errors.Newf(errors.KindInvalidInput, op,
			"provider returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	// The API reports an index per embedding; place by index rather than
	// trusting response order.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, errors.Newf(errors.KindInvalidInput, op, "embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		vectors[d.Index] = vec
	}
	return vectors, nil
}

// Chat sends one chat completion, honoring the global rate gate and
// retrying transient failures with backoff. ContextTooLarge surfaces
// immediately so callers can fall back to map-reduce.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	const op = "provider.chat"

	return errors.RetryWithResult(ctx, c.retry, func() (string, error) {
		if err := c.gate.Wait(ctx); err != nil {
			return "", err
		}

		var resp chatResponse
		err := c.post(ctx, op, "/chat/completions", chatRequest{
			Model:       c.cfg.ChatModel,
			Messages:    messages,
			Temperature: 0,
		}, &resp)
		if err != nil {
			return "", err
		}

		if len(resp.Choices) == 0 {
			return "", errors.Newf(errors.KindTransient, op, "empty choices in response")
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	})
}

// post issues one JSON request with the per-call timeout and maps failures
// to the engine error taxonomy.
func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.New(errors.KindInternal, op, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.New(errors.KindInternal, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Network failures and per-call timeouts are transient.
		return errors.New(errors.KindTransient, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.classifyHTTPError(op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Newf(errors.KindTransient, op, "decode response: %v", err)
	}
	return nil
}

// classifyHTTPError maps the provider's failure taxonomy onto ours:
// 429 -> RateLimited, 5xx -> Transient, context-length 400s ->
// ContextTooLarge, remaining 4xx -> InvalidInput.
func (c *Client) classifyHTTPError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var parsed apiError
	_ = json.Unmarshal(raw, &parsed)
	message := parsed.Error.Message
	if message == "" {
		message = string(raw)
	}
	cause := fmt.Errorf("status %d: %s", resp.StatusCode, message)

	slog.Debug("provider_http_error",
		slog.String("op", op),
		slog.Int("status", resp.StatusCode),
		slog.String("code", parsed.Error.Code))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.New(errors.KindRateLimited, op, cause)
	case resp.StatusCode >= 500:
		return errors.New(errors.KindTransient, op, cause)
	case isContextLengthError(parsed.Error.Code, message):
		return errors.New(errors.KindContextTooLarge, op, cause)
	default:
		return errors.New(errors.KindInvalidInput, op, cause)
	}
}

func isContextLengthError(code, message string) bool {
	if code == "context_length_exceeded" {
		return true
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "maximum context length") ||
		strings.Contains(lower, "context length exceeded")
}
