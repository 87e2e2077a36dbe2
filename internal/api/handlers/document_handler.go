package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	middleware "github.com/MayukhDg/BidWinnerAI-prod/internal/api/middlewares"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/logger"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/models"
)

// multipartOverhead is slack for boundaries and headers on top of the file cap.
const multipartOverhead = 1 << 20

// Documents is the document surface the handler needs.
type Documents interface {
	UploadAndCreate(ctx context.Context, userID, filename string, data []byte) (*models.Document, error)
	Get(ctx context.Context, userID, id string) (*models.Document, error)
	ListByUser(ctx context.Context, userID string) ([]models.Document, error)
	Reprocess(ctx context.Context, userID, id string) (*models.Document, error)
	Delete(ctx context.Context, userID, id string) error
}

type DocumentHandler struct {
	docs      Documents
	maxUpload int64
	logger    *zap.Logger
}

func NewDocumentHandler(docs Documents, maxUpload int64, logger *zap.Logger) *DocumentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentHandler{docs: docs, maxUpload: maxUpload, logger: logger}
}

// UploadDocument stores a docx upload and queues it for ingestion.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	log := logger.FromContext(r.Context(), h.logger)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, log, fmt.Errorf("%w: upload exceeds %d bytes", core.ErrFileTooLarge, h.maxUpload))
			return
		}
		writeError(w, log, fmt.Errorf("%w: %w", core.ErrInvalidArgument, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, log, fmt.Errorf("%w: missing file field", core.ErrInvalidArgument))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		writeError(w, log, fmt.Errorf("read upload: %w", err))
		return
	}
	if int64(len(data)) > h.maxUpload {
		writeError(w, log, fmt.Errorf("%w: upload exceeds %d bytes", core.ErrFileTooLarge, h.maxUpload))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	doc, err := h.docs.UploadAndCreate(ctx, userID, header.Filename, data)
	if err != nil {
		writeError(w, log, err)
		return
	}
	log.Info("document uploaded", zap.String("document_id", doc.ID), zap.Int("bytes", len(data)))
	writeJSON(w, http.StatusAccepted, doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	documents, err := h.docs.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, logger.FromContext(r.Context(), h.logger), err)
		return
	}
	if documents == nil {
		documents = []models.Document{}
	}
	writeJSON(w, http.StatusOK, documents)
}

// GetDocument serves status and progress polls.
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	doc, err := h.docs.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, logger.FromContext(r.Context(), h.logger), err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) ProcessDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	doc, err := h.docs.Reprocess(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, logger.FromContext(r.Context(), h.logger), err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.docs.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, logger.FromContext(r.Context(), h.logger), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
