// Package remote runs ingestion on a separate worker process over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	ingest "github.com/MayukhDg/BidWinnerAI-prod/internal/core/ingestion_engine"
)

const (
	ProcessPath  = "/process-document"
	WorkerKeyHdr = "x-worker-key"
)

// ProcessRequest is the worker RPC body.
type ProcessRequest struct {
	DocumentID string `json:"documentId"`
}

// ProcessResponse is returned by the worker for both outcomes. Kind names the
// failure class so the caller can restore the sentinel error.
type ProcessResponse struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"documentId,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
	ChunkCount int    `json:"chunkCount,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
	Error      string `json:"error,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

// errRateLimitExhausted keeps both sentinels so IsRetryable still holds after the round trip.
var errRateLimitExhausted = fmt.Errorf("%w: %w", core.ErrEmbeddingService, core.ErrRateLimited)

var kinds = []struct {
	name string
	err  error
}{
	{"not_found", core.ErrNotFound},
	{"unsupported_format", core.ErrUnsupportedFormat},
	{"empty_or_unreadable", core.ErrEmptyOrUnreadable},
	{"malformed", core.ErrMalformedDocument},
	{"file_too_large", core.ErrFileTooLarge},
	{"rate_limited", core.ErrRateLimited},
	{"embedding", core.ErrEmbeddingService},
	{"fetch", core.ErrFetchFailed},
	{"storage", core.ErrStorage},
	{"superseded", ingest.ErrSuperseded},
}

// ErrorKind names the sentinel err wraps, or "" when none matches.
func ErrorKind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}

func sentinel(kind string) error {
	if kind == "rate_limited" {
		return errRateLimitExhausted
	}
	for _, k := range kinds {
		if k.name == kind {
			return k.err
		}
	}
	return nil
}

// Client is an ingestion_engine.Ingestor that delegates to a worker.
type Client struct {
	baseURL    string
	key        string
	http       *http.Client
	retryDelay time.Duration
	logger     *zap.Logger
}

var _ ingest.Ingestor = (*Client)(nil)

func NewClient(baseURL, key string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		key:        key,
		http:       &http.Client{Timeout: timeout},
		retryDelay: time.Second,
		logger:     logger,
	}
}

// Ingest calls the worker once and retries a single time after a transport
// error, a 5xx or a 429. Anything else is final.
func (c *Client) Ingest(ctx context.Context, docID string) (*ingest.IngestResult, error) {
	body, err := json.Marshal(ProcessRequest{DocumentID: docID})
	if err != nil {
		return nil, err
	}

	res, retry, err := c.call(ctx, body)
	if !retry {
		return res, err
	}

	c.logger.Warn("worker call failed, retrying once", zap.String("document_id", docID), zap.Error(err))
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	res, _, err = c.call(ctx, body)
	return res, err
}

func (c *Client) call(ctx context.Context, body []byte) (*ingest.IngestResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ProcessPath, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build worker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(WorkerKeyHdr, c.key)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("%w: worker unreachable: %w", core.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, true, fmt.Errorf("%w: read worker response: %w", core.ErrFetchFailed, err)
	}

	var out ProcessResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode == http.StatusOK && out.Success {
		return &ingest.IngestResult{
			DocumentID: out.DocumentID,
			Skipped:    out.Skipped,
			ChunkCount: out.ChunkCount,
			Truncated:  out.Truncated,
		}, false, nil
	}

	retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
	return nil, retry, workerError(resp.StatusCode, out)
}

func workerError(status int, out ProcessResponse) error {
	msg := out.Error
	if msg == "" {
		msg = http.StatusText(status)
	}
	if s := sentinel(out.Kind); s != nil {
		return fmt.Errorf("worker %d: %s: %w", status, msg, s)
	}
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("worker %d: %s: %w", status, msg, core.ErrNotFound)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("worker %d: %s: %w", status, msg, core.ErrEmptyOrUnreadable)
	case http.StatusUnauthorized, http.StatusBadRequest:
		return fmt.Errorf("worker %d: %s", status, msg)
	}
	return fmt.Errorf("worker %d: %s: %w", status, msg, core.ErrFetchFailed)
}
