package llm

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

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core/embedding"
)

func writeEmbedding(w http.ResponseWriter, vec []float32) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"model":  "test-model",
		"data": []map[string]any{
			{"object": "embedding", "index": 0, "embedding": vec},
		},
		"usage": map[string]int{"prompt_tokens": 3, "total_tokens": 3},
	})
}

func writeAPIError(w http.ResponseWriter, status int, typ, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": "nope", "type": typ, "code": code},
	})
}

func newTestEmbedder(t *testing.T, url string) *OpenAIEmbedder {
	t.Helper()
	e, err := NewOpenAIEmbedder(&OpenAIConfig{APIKey: "test-key", BaseURL: url, Model: "test-model", Dimensions: 3})
	require.NoError(t, err)
	return e
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])
		assert.EqualValues(t, 3, body["dimensions"])

		writeEmbedding(w, []float32{0.1, 0.2, 0.3})
	}))
	defer server.Close()

	vec, err := newTestEmbedder(t, server.URL).Embed(context.Background(), "hello world")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOpenAIEmbedder_RateLimitIsClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusTooManyRequests, "rate_limit_error", "rate_limit_exceeded")
	}))
	defer server.Close()

	_, err := newTestEmbedder(t, server.URL).Embed(context.Background(), "hello")

	assert.ErrorIs(t, err, core.ErrRateLimited)
}

func TestOpenAIEmbedder_OtherErrorsAreFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusBadRequest, "invalid_request_error", "bad_input")
	}))
	defer server.Close()

	_, err := newTestEmbedder(t, server.URL).Embed(context.Background(), "hello")

	assert.ErrorIs(t, err, core.ErrEmbeddingService)
	assert.NotErrorIs(t, err, core.ErrRateLimited)
}

func TestOpenAIEmbedder_PlainBody429(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer server.Close()

	_, err := newTestEmbedder(t, server.URL).Embed(context.Background(), "hello")

	assert.ErrorIs(t, err, core.ErrRateLimited)
}

func TestOpenAIEmbedder_RetriedThroughRetrier(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			writeAPIError(w, http.StatusTooManyRequests, "rate_limit_error", "rate_limit_exceeded")
			return
		}
		writeEmbedding(w, []float32{1, 2, 3})
	}))
	defer server.Close()

	r := embedding.NewRetrier(newTestEmbedder(t, server.URL), embedding.RetryConfig{
		BaseDelay: time.Millisecond,
		MaxJitter: -1,
	}, nil)

	vec, err := r.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
	assert.EqualValues(t, 3, calls.Load())
}

func TestOpenAIChat_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": "Drafted."}}},
		})
	}))
	defer server.Close()

	chat, err := NewOpenAIChat(&OpenAIConfig{APIKey: "k", BaseURL: server.URL, Model: "gpt-test"})
	require.NoError(t, err)

	out, err := chat.Generate(context.Background(), "be brief", "question?")

	require.NoError(t, err)
	assert.Equal(t, "Drafted.", out)
}
