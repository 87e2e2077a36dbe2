package ingestion_engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
)

// DispatcherConfig tunes delivery.
//
// QueueSize:     capacity of the job channel; Enqueue blocks when it is full.
// MaxDeliveries: attempts per document, the first one included.
// RetryDelay:    redelivery waits attempt*RetryDelay.
// JobTimeout:    upper bound for one attempt; 0 means none.
type DispatcherConfig struct {
	QueueSize     int
	MaxDeliveries int
	RetryDelay    time.Duration
	JobTimeout    time.Duration
}

type job struct {
	docID   string
	attempt int
}

// Dispatcher is an in-process at-least-once job runner in front of an Ingestor.
type Dispatcher struct {
	ingestor Ingestor
	cfg      DispatcherConfig
	jobs     chan job
	logger   *zap.Logger

	pending sync.WaitGroup
}

func NewDispatcher(ingestor Ingestor, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		ingestor: ingestor,
		cfg:      cfg,
		jobs:     make(chan job, cfg.QueueSize),
		logger:   logger,
	}
}

// Enqueue schedules a document for ingestion.
// If the queue is full, it blocks until space frees up or ctx is done.
func (d *Dispatcher) Enqueue(ctx context.Context, docID string) error {
	select {
	case d.jobs <- job{docID: docID, attempt: 1}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs numWorkers workers and blocks until ctx is done and every worker
// and pending redelivery has returned.
func (d *Dispatcher) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}

	var workers sync.WaitGroup
	for w := 1; w <= numWorkers; w++ {
		workers.Add(1)
		go func(w int) {
			defer workers.Done()
			for {
				select {
				case <-ctx.Done():
					d.logger.Debug("dispatcher worker shutting down", zap.Int("worker", w))
					return
				case j := <-d.jobs:
					d.deliver(ctx, w, j)
				}
			}
		}(w)
	}

	workers.Wait()
	d.pending.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, worker int, j job) {
	logger := d.logger.With(
		zap.String("document_id", j.docID),
		zap.Int("worker", worker),
		zap.Int("attempt", j.attempt),
	)

	jobCtx, cancel := ctx, context.CancelFunc(func() {})
	if d.cfg.JobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, d.cfg.JobTimeout)
	}
	res, err := d.ingestor.Ingest(jobCtx, j.docID)
	cancel()

	switch {
	case err == nil:
		logger.Info("ingestion finished", zap.Bool("skipped", res.Skipped), zap.Int("chunks", res.ChunkCount))
	case errors.Is(err, ErrSuperseded):
		logger.Info("ingestion superseded by a newer run")
	case ctx.Err() != nil:
		logger.Info("ingestion interrupted by shutdown", zap.Error(err))
	case core.IsRetryable(err) && j.attempt < d.cfg.MaxDeliveries:
		delay := time.Duration(j.attempt) * d.cfg.RetryDelay
		logger.Warn("ingestion failed, redelivering", zap.Error(err), zap.Duration("delay", delay))
		d.redeliver(ctx, job{docID: j.docID, attempt: j.attempt + 1}, delay)
	default:
		logger.Error("ingestion failed", zap.Error(err))
	}
}

func (d *Dispatcher) redeliver(ctx context.Context, j job, delay time.Duration) {
	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
		select {
		case d.jobs <- j:
		case <-ctx.Done():
		}
	}()
}
