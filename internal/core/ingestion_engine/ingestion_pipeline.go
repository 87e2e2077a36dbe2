package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core/embedding"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/metrics"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/models"
)

// Pipeline fetches, parses, embeds and persists one document per Ingest call.
type Pipeline struct {
	docs     core.DocumentStore
	chunks   core.ChunkStore
	fetcher  core.Fetcher
	parser   core.DocumentParser
	embedder core.EmbeddingProvider
	cfg      Config
	logger   *zap.Logger

	runs *runRegistry
	now  func() time.Time
}

var _ Ingestor = (*Pipeline)(nil)

func NewPipeline(
	docs core.DocumentStore,
	chunks core.ChunkStore,
	fetcher core.Fetcher,
	parser core.DocumentParser,
	embedder core.EmbeddingProvider,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		docs:     docs,
		chunks:   chunks,
		fetcher:  fetcher,
		parser:   parser,
		embedder: embedder,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		runs:     newRunRegistry(),
		now:      time.Now,
	}
}

// Ingest processes docID end to end. Completed documents are skipped without
// writes. Once the document is marked processing, any error leaves it failed,
// unless a newer run for the same document took over.
func (p *Pipeline) Ingest(ctx context.Context, docID string) (*IngestResult, error) {
	start := p.now()
	logger := p.logger.With(zap.String("document_id", docID))

	runCtx, release, err := p.runs.acquire(ctx, docID)
	if err != nil {
		metrics.IngestionRunsTotal.WithLabelValues(outcomeFor(err)).Inc()
		return nil, fmt.Errorf("document %s: %w", docID, err)
	}
	defer release()

	doc, err := p.docs.GetDocumentByID(runCtx, docID)
	if err != nil {
		return nil, err
	}

	if doc.Status == models.StatusCompleted {
		logger.Info("document already completed, skipping")
		metrics.IngestionRunsTotal.WithLabelValues("skipped").Inc()
		return &IngestResult{DocumentID: docID, Skipped: true, ChunkCount: doc.ChunkCount}, nil
	}

	if err := p.docs.MarkProcessing(runCtx, docID, p.now()); err != nil {
		return nil, fmt.Errorf("start processing: %w", err)
	}
	logger.Info("processing document", zap.String("file_name", doc.FileName), zap.String("file_type", doc.FileType))

	res, err := p.process(runCtx, doc, logger)
	metrics.IngestionDuration.Observe(p.now().Sub(start).Seconds())
	if err != nil {
		if errors.Is(context.Cause(runCtx), ErrSuperseded) {
			err = fmt.Errorf("document %s: %w", docID, ErrSuperseded)
		}
		p.fail(runCtx, docID, err, logger)
		metrics.IngestionRunsTotal.WithLabelValues(outcomeFor(err)).Inc()
		return nil, err
	}

	metrics.IngestionRunsTotal.WithLabelValues("completed").Inc()
	logger.Info("document processed",
		zap.Int("chunks", res.ChunkCount),
		zap.Bool("truncated", res.Truncated),
		zap.Duration("took", p.now().Sub(start)),
	)
	return res, nil
}

func (p *Pipeline) process(ctx context.Context, doc *models.Document, logger *zap.Logger) (*IngestResult, error) {
	if n, err := p.chunks.DeleteChunksByDocument(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("clear previous chunks: %w", err)
	} else if n > 0 {
		logger.Info("cleared chunks from a previous attempt", zap.Int64("chunks", n))
	}

	data, err := p.fetcher.Fetch(ctx, doc.StorageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}

	parsed, err := p.parser.Parse(ctx, data, doc.FileType)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if parsed.Truncated {
		logger.Warn("parser truncated document",
			zap.Int("windows", parsed.TotalWindows),
			zap.Int("kept", len(parsed.Chunks)),
		)
	}

	chunks := parsed.Chunks
	truncated := parsed.Truncated
	if len(chunks) > p.cfg.MaxChunks {
		logger.Warn("too many chunks, truncating",
			zap.Int("chunks", len(chunks)),
			zap.Int("max_chunks", p.cfg.MaxChunks),
		)
		chunks = chunks[:p.cfg.MaxChunks]
		truncated = true
	}

	total := len(chunks)
	processed := 0
	for batch, err := range embedding.Batches(ctx, p.embedder, chunks, p.cfg.BatchSize) {
		if err != nil {
			return nil, err
		}

		rows := make([]models.DocumentChunk, 0, len(batch.Items))
		for _, item := range batch.Items {
			if p.cfg.EmbedDim > 0 && len(item.Vector) != p.cfg.EmbedDim {
				return nil, fmt.Errorf("chunk %d: embedding has %d dimensions, want %d: %w",
					item.Index, len(item.Vector), p.cfg.EmbedDim, core.ErrEmbeddingService)
			}
			rows = append(rows, models.DocumentChunk{
				ID:         uuid.NewString(),
				DocumentID: doc.ID,
				UserID:     doc.UserID,
				ChunkIndex: item.Index,
				Content:    item.Content,
				Embedding:  item.Vector,
				Metadata:   item.Metadata,
				CreatedAt:  p.now(),
			})
		}

		if err := p.chunks.InsertDocumentChunks(ctx, rows); err != nil {
			return nil, fmt.Errorf("persist batch %d: %w", batch.Seq, err)
		}
		processed += len(rows)
		metrics.ChunksIndexedTotal.Add(float64(len(rows)))

		if err := p.docs.UpdateProgress(ctx, doc.ID, models.NewProgress(processed, total)); err != nil {
			return nil, fmt.Errorf("update progress: %w", err)
		}
		logger.Debug("batch persisted", zap.Int("batch", batch.Seq), zap.Int("processed", processed), zap.Int("total", total))
	}

	if err := p.docs.MarkCompleted(ctx, doc.ID, processed, p.now()); err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}

	return &IngestResult{DocumentID: doc.ID, ChunkCount: processed, Truncated: truncated}, nil
}

// fail records cause on the document. It writes on a context detached from
// runCtx so a cancelled caller still leaves the document failed; a superseded
// run writes nothing because the newer run owns the status.
func (p *Pipeline) fail(runCtx context.Context, docID string, cause error, logger *zap.Logger) {
	if errors.Is(cause, ErrSuperseded) {
		logger.Info("run superseded, leaving status to the newer run")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), p.cfg.FailTimeout)
	defer cancel()

	if err := p.docs.MarkFailed(ctx, docID, cause.Error(), p.now()); err != nil {
		logger.Error("could not mark document failed", zap.Error(err), zap.NamedError("cause", cause))
		return
	}
	logger.Warn("document processing failed", zap.Error(cause), zap.Bool("retryable", core.IsRetryable(cause)))
}

func outcomeFor(err error) string {
	if errors.Is(err, ErrSuperseded) {
		return "superseded"
	}
	return "failed"
}
