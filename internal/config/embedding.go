package config

import (
	"fmt"
	"strings"
)

// embeddingModel describes a model whose output size is fixed by the provider.
// Resizable models honour a smaller requested dimension.
type embeddingModel struct {
	provider  string
	dim       int
	resizable bool
}

var knownEmbeddingModels = map[string]embeddingModel{
	"text-embedding-3-small": {provider: "openai", dim: 1536, resizable: true},
	"text-embedding-3-large": {provider: "openai", dim: 3072, resizable: true},
	"text-embedding-ada-002": {provider: "openai", dim: 1536},
	"text-embedding-004":     {provider: "gemini", dim: 768},
	"embedding-001":          {provider: "gemini", dim: 768},
}

// defaultEmbedModel is the model used when EMBED_MODEL is unset.
func defaultEmbedModel(provider string) string {
	if provider == "gemini" {
		return "text-embedding-004"
	}
	return "text-embedding-3-small"
}

func lookupEmbeddingModel(name string) (embeddingModel, bool) {
	m, ok := knownEmbeddingModels[strings.TrimPrefix(name, "models/")]
	return m, ok
}

// defaultEmbedDim is the native size of model, or 1536 when the model is unknown.
func defaultEmbedDim(model string) int {
	if m, ok := lookupEmbeddingModel(model); ok {
		return m.dim
	}
	return 1536
}

// checkEmbedding rejects provider, model and dimension combinations that can
// never produce vectors of EmbedDim length. Unknown models are accepted.
func (c *Config) checkEmbedding() error {
	model := c.EmbedModel
	if model == "" {
		model = defaultEmbedModel(c.EmbedProvider)
	}
	m, ok := lookupEmbeddingModel(model)
	if !ok {
		return nil
	}
	if m.provider != c.EmbedProvider {
		return fmt.Errorf("EMBED_MODEL %q belongs to provider %s, not %q", model, m.provider, c.EmbedProvider)
	}
	if c.EmbedDim == m.dim || (m.resizable && c.EmbedDim < m.dim) {
		return nil
	}
	if m.resizable {
		return fmt.Errorf("EMBED_DIM %d exceeds the %d dimensions of %s", c.EmbedDim, m.dim, model)
	}
	return fmt.Errorf("EMBED_DIM %d does not match %s, which returns %d dimensions", c.EmbedDim, model, m.dim)
}
