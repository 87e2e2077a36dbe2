package handlers

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	middleware "github.com/MayukhDg/BidWinnerAI-prod/internal/api/middlewares"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/logger"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/models"
)

type Searcher interface {
	Search(ctx context.Context, query, tenantID string, k int) ([]models.ScoredChunk, error)
}

type Drafter interface {
	Draft(ctx context.Context, tenantID, question string) (*models.DraftAnswer, error)
}

// QueryHandler serves retrieval and answer drafting over the tenant's indexed proposals.
type QueryHandler struct {
	search Searcher
	answer Drafter
	logger *zap.Logger
}

func NewQueryHandler(search Searcher, answer Drafter, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{search: search, answer: answer, logger: logger}
}

type SearchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type SearchResponse struct {
	Results []models.ScoredChunk `json:"results"`
}

type AnswerRequest struct {
	Question string `json:"question"`
}

func (h *QueryHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	log := logger.FromContext(r.Context(), h.logger)

	var req SearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, log, err)
		return
	}
	if req.K < 0 {
		writeError(w, log, fmt.Errorf("%w: k must not be negative", core.ErrInvalidArgument))
		return
	}

	results, err := h.search.Search(r.Context(), req.Query, userID, req.K)
	if err != nil {
		writeError(w, log, err)
		return
	}
	if results == nil {
		results = []models.ScoredChunk{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

func (h *QueryHandler) Answer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	log := logger.FromContext(r.Context(), h.logger)

	var req AnswerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, log, err)
		return
	}

	ans, err := h.answer.Draft(r.Context(), userID, req.Question)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}
