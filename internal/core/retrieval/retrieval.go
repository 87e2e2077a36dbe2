// Package retrieval answers tenant-scoped nearest-neighbour queries over indexed chunks.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/metrics"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/models"
)

const (
	DefaultK = 10
	MaxK     = 50

	// OverFetch widens the store query so the tenant filter still leaves k hits.
	OverFetch = 5
)

type Service struct {
	embedder core.EmbeddingProvider
	chunks   core.ChunkStore
	logger   *zap.Logger
}

func NewService(embedder core.EmbeddingProvider, chunks core.ChunkStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{embedder: embedder, chunks: chunks, logger: logger}
}

// Search returns up to k chunks owned by tenantID, most similar first.
// k <= 0 means DefaultK; k above MaxK is clamped.
func (s *Service) Search(ctx context.Context, query, tenantID string, k int) ([]models.ScoredChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", core.ErrInvalidArgument)
	}
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant is empty", core.ErrInvalidArgument)
	}
	if k <= 0 {
		k = DefaultK
	}
	k = min(k, MaxK)

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := s.chunks.NearestChunks(ctx, tenantID, vec, k*OverFetch)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("nearest chunks: %w", err)
	}

	out := make([]models.ScoredChunk, 0, min(k, len(candidates)))
	dropped := 0
	for _, c := range candidates {
		if c.UserID != tenantID {
			dropped++
			continue
		}
		out = append(out, c)
		if len(out) == k {
			break
		}
	}
	if dropped > 0 {
		s.logger.Warn("store returned chunks of another tenant", zap.String("tenant", tenantID), zap.Int("dropped", dropped))
	}

	metrics.SearchRequestsTotal.WithLabelValues("success").Inc()
	return out, nil
}
