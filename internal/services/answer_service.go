package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/models"
)

const answerContextK = 10

const answerSystemPrompt = "You are an expert proposal writer. Answer the RFP question using only the provided context " +
	"from the company's past proposals. If the context does not cover the question, say what is missing."

// Searcher is the retrieval dependency of AnswerService.
type Searcher interface {
	Search(ctx context.Context, query, tenantID string, k int) ([]models.ScoredChunk, error)
}

type AnswerService struct {
	search Searcher
	llm    core.LLMProvider
	logger *zap.Logger
}

func NewAnswerService(search Searcher, llm core.LLMProvider, logger *zap.Logger) *AnswerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerService{search: search, llm: llm, logger: logger}
}

// Draft retrieves the tenant's closest chunks and asks the LLM for an answer grounded in them.
func (s *AnswerService) Draft(ctx context.Context, tenantID, question string) (*models.DraftAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", core.ErrInvalidArgument)
	}

	hits, err := s.search.Search(ctx, question, tenantID, answerContextK)
	if err != nil {
		return nil, err
	}

	answer, err := s.llm.Generate(ctx, answerSystemPrompt, buildAnswerPrompt(question, hits))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	s.logger.Debug("drafted answer", zap.String("tenant", tenantID), zap.Int("context_chunks", len(hits)))
	return &models.DraftAnswer{Question: question, Answer: answer, Context: hits}, nil
}

func buildAnswerPrompt(question string, hits []models.ScoredChunk) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, h.Content)
	}
	var b strings.Builder
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(parts, "\n\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
