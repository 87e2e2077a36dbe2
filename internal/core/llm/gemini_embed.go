package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/metrics"
)

const providerGemini = "gemini"

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	return &GeminiEmbedder{client: cl, modelName: modelName}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Embed sends one EmbedContent request for text.
func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	em := g.client.EmbeddingModel(g.modelName)

	start := time.Now()
	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerGemini, g.modelName, "error").Inc()
		return nil, classifyGeminiError(err)
	}
	metrics.EmbeddingRequestDuration.WithLabelValues(providerGemini, g.modelName).Observe(time.Since(start).Seconds())

	if resp == nil || resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerGemini, g.modelName, "error").Inc()
		return nil, fmt.Errorf("empty gemini embedding: %w", core.ErrEmbeddingService)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(providerGemini, g.modelName, "success").Inc()
	return resp.Embedding.Values, nil
}

// classifyGeminiError treats HTTP 429 and gRPC ResourceExhausted as rate limiting.
func classifyGeminiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("gemini embed: %v: %w", err, core.ErrRateLimited)
	}
	if status.Code(err) == codes.ResourceExhausted {
		return fmt.Errorf("gemini embed: %v: %w", err, core.ErrRateLimited)
	}
	return fmt.Errorf("gemini embed: %v: %w", err, core.ErrEmbeddingService)
}
