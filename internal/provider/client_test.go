package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ba3ai/Clarus-Updated-sub000/internal/errors"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		EmbedModel:     "embed-model",
		ChatModel:      "chat-model",
		RequestTimeout: 5 * time.Second,
		MaxConcurrency: 2,
	})
	c.retry = errors.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	return c
}

func TestClient_EmbedBatch_PlacesByIndex(t *testing.T) {
	// Given: a provider that returns embeddings out of order
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float64{2, 2}},
				{"index": 0, "embedding": []float64{1, 1}},
			},
		})
	})

	vecs, err := c.EmbedBatch(context.Background(), []string{"first", "second"})

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, vecs[0])
	assert.Equal(t, []float32{2, 2}, vecs[1])
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   errors.Kind
	}{
		{"rate limited", 429, `{"error":{"message":"slow down"}}`, errors.KindRateLimited},
		{"server error", 503, `oops`, errors.KindTransient},
		{"context length", 400, `{"error":{"code":"context_length_exceeded","message":"too long"}}`, errors.KindContextTooLarge},
		{"context length by message", 400, `{"error":{"message":"This model's maximum context length is 8192 tokens"}}`, errors.KindContextTooLarge},
		{"invalid input", 400, `{"error":{"message":"invalid request"}}`, errors.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.EmbedBatch(context.Background(), []string{"x"})

			require.Error(t, err)
			assert.Equal(t, tt.want, errors.KindOf(err))
		})
	}
}

func TestClient_Chat_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "  the answer  "}},
			},
		})
	})

	answer, err := c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "q"}})

	require.NoError(t, err)
	assert.Equal(t, "the answer", answer)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Chat_ContextTooLargeSurfacesImmediately(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"context_length_exceeded","message":"too long"}}`))
	})

	_, err := c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "q"}})

	require.Error(t, err)
	assert.Equal(t, errors.KindContextTooLarge, errors.KindOf(err))
	assert.Equal(t, int32(1), calls.Load(), "no retries for context-length failures")
}

func TestClient_EmbedBatch_EmptyInput(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for empty input")
	})

	vecs, err := c.EmbedBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestRateGate_EnforcesMinimumInterval(t *testing.T) {
	gate := NewRateGate(20 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, gate.Wait(ctx))
	require.NoError(t, gate.Wait(ctx))
	require.NoError(t, gate.Wait(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestRateGate_DisabledAndCancelled(t *testing.T) {
	// Disabled gate never blocks.
	require.NoError(t, NewRateGate(0).Wait(context.Background()))

	// A cancelled context unblocks a waiting caller.
	gate := NewRateGate(time.Hour)
	require.NoError(t, gate.Wait(context.Background())) // primes last-call time
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := gate.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCachedEmbedder_ServesRepeatsFromCache(t *testing.T) {
	fake := &fakeEmbedder{}
	cached := NewCachedEmbedder(fake, 16)

	first, err := cached.EmbedBatch(context.Background(), []string{"q1", "q2"})
	require.NoError(t, err)

	second, err := cached.EmbedBatch(context.Background(), []string{"q2", "q3", "q1"})
	require.NoError(t, err)

	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
	// Only the miss ("q3") hit the inner embedder on the second call.
	require.Len(t, fake.calls, 2)
	assert.Equal(t, []string{"q3"}, fake.calls[1])
}
