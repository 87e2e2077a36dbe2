package core

import (
	"context"
	"time"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/models"
)

// DocumentStore persists Documents and their lifecycle fields.
// Lookups of a missing id return an error wrapping ErrNotFound.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)

	MarkProcessing(ctx context.Context, id string, startedAt time.Time) error
	UpdateProgress(ctx context.Context, id string, p models.Progress) error
	MarkCompleted(ctx context.Context, id string, chunkCount int, completedAt time.Time) error
	MarkFailed(ctx context.Context, id string, message string, failedAt time.Time) error

	// FailStaleProcessing fails every processing document started before olderThan
	// and returns their ids.
	FailStaleProcessing(ctx context.Context, olderThan time.Time, message string) ([]string, error)

	// DeleteDocument removes the document and, by cascade, its chunks.
	DeleteDocument(ctx context.Context, id string) error
}

// ChunkStore is the append target of the pipeline and the ANN index read by retrieval.
type ChunkStore interface {
	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	DeleteChunksByDocument(ctx context.Context, documentID string) (int64, error)
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)

	// NearestChunks returns up to limit chunks of tenantID ordered by similarity to vec.
	NearestChunks(ctx context.Context, tenantID string, vec []float32, limit int) ([]models.ScoredChunk, error)
}

// DbClient is the full persistence surface backed by Postgres/pgvector or SQLite.
type DbClient interface {
	DocumentStore
	ChunkStore
	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)

	// ObjectSize returns the stored size in bytes, or -1 when unknown.
	ObjectSize(ctx context.Context, bucket, key string) (int64, error)
	Bucket() string
}
