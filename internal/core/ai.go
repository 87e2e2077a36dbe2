package core

import "context"

// EmbeddingProvider turns one text into a fixed-length vector.
// Implementations report upstream throttling by wrapping ErrRateLimited.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LLMProvider is the opaque completion service used for answer drafting.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
