package ingestion_engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/metrics"
)

const StaleMessage = "processing timed out"

// Reaper fails documents stuck in processing longer than a timeout, so a
// crashed worker never leaves a document processing forever.
type Reaper struct {
	docs     core.DocumentStore
	timeout  time.Duration
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewReaper(docs core.DocumentStore, timeout, interval time.Duration, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{docs: docs, timeout: timeout, interval: interval, logger: logger, now: time.Now}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("stale document sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep fails every document whose processing started before now - timeout.
func (r *Reaper) Sweep(ctx context.Context) ([]string, error) {
	cutoff := r.now().Add(-r.timeout)
	ids, err := r.docs.FailStaleProcessing(ctx, cutoff, StaleMessage)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		metrics.StaleDocumentsFailedTotal.Add(float64(len(ids)))
		r.logger.Warn("failed stale documents", zap.Strings("document_ids", ids), zap.Time("cutoff", cutoff))
	}
	return ids, nil
}
