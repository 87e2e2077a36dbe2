package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a core sentinel to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrForbidden):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrEmptyOrUnreadable), errors.Is(err, core.ErrMalformedDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrEmbeddingService):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError logs server-side failures and hides their detail from the caller.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case status >= 500:
		logger.Error("request failed", zap.Error(err), zap.Int("status", status))
		msg = http.StatusText(status)
	case errors.Is(err, core.ErrForbidden):
		msg = "document not found"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return errors.Join(core.ErrInvalidArgument, err)
	}
	return nil
}
