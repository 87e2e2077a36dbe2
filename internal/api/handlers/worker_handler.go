package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	ingest "github.com/MayukhDg/BidWinnerAI-prod/internal/core/ingestion_engine"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core/remote"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/logger"
)

// WorkerHandler runs ingestion synchronously for the remote client.
type WorkerHandler struct {
	ingestor ingest.Ingestor
	logger   *zap.Logger
}

func NewWorkerHandler(ingestor ingest.Ingestor, logger *zap.Logger) *WorkerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerHandler{ingestor: ingestor, logger: logger}
}

func (h *WorkerHandler) ProcessDocument(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), h.logger)

	var req remote.ProcessRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.DocumentID) == "" {
		writeJSON(w, http.StatusBadRequest, remote.ProcessResponse{Error: "documentId is required"})
		return
	}

	res, err := h.ingestor.Ingest(r.Context(), req.DocumentID)
	if err != nil {
		status := workerStatus(err)
		log.Warn("worker ingestion failed",
			zap.String("document_id", req.DocumentID),
			zap.Int("status", status),
			zap.Error(err),
		)
		writeJSON(w, status, remote.ProcessResponse{
			DocumentID: req.DocumentID,
			Error:      err.Error(),
			Kind:       remote.ErrorKind(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, remote.ProcessResponse{
		Success:    true,
		DocumentID: res.DocumentID,
		Skipped:    res.Skipped,
		ChunkCount: res.ChunkCount,
		Truncated:  res.Truncated,
	})
}

// workerStatus maps an ingestion error onto the status the remote client understands.
// A superseded run answers 409 so the caller neither retries nor records a failure.
func workerStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, core.ErrUnsupportedFormat),
		errors.Is(err, core.ErrEmptyOrUnreadable),
		errors.Is(err, core.ErrMalformedDocument),
		errors.Is(err, core.ErrFileTooLarge):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrFetchFailed),
		errors.Is(err, core.ErrEmbeddingService),
		errors.Is(err, core.ErrStorage):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
