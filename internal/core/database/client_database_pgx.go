package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/config"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/models"
)

// PostgresClient stores documents and pgvector embeddings in Postgres.
type PostgresClient struct {
	db *sql.DB
}

var _ core.DbClient = (*PostgresClient)(nil)

func NewPostgresClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*PostgresClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn, err := postgresDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// postgresDSN appends verify-ca SSL parameters when a root certificate is configured.
func postgresDSN(databaseURL, sslCertPath string) (string, error) {
	if sslCertPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(sslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", sslCertPath, err)
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", sslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *PostgresClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

const documentColumns = `id, user_id, file_name, storage_url, storage_key, file_type, status,
	chunk_count, chunks_processed, total_chunks, processing_progress, error,
	processing_started_at, processing_completed_at, processing_failed_at, created_at, updated_at`

func (c *PostgresClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, user_id, file_name, storage_url, storage_key, file_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.UserID, doc.FileName, doc.StorageURL, doc.StorageKey, doc.FileType, string(doc.Status),
		doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return storageErr("create document", err)
	}
	return nil
}

func (c *PostgresClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanPostgresDocument(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get document", err)
	}
	return d, nil
}

func (c *PostgresClient) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, storageErr("list documents", err)
	}
	defer rows.Close()

	out := []models.Document{}
	for rows.Next() {
		d, err := scanPostgresDocument(rows)
		if err != nil {
			return nil, storageErr("list documents", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list documents", err)
	}
	return out, nil
}

// MarkProcessing resets progress and moves a non-completed document into processing.
func (c *PostgresClient) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	const q = `
		UPDATE documents
		SET status = 'processing', chunk_count = 0, chunks_processed = 0, total_chunks = 0,
		    processing_progress = 0, error = '', processing_started_at = $2,
		    processing_completed_at = NULL, processing_failed_at = NULL, updated_at = $2
		WHERE id = $1 AND status <> 'completed'
	`
	return c.execOne(ctx, "mark processing", id, q, id, startedAt)
}

// UpdateProgress never moves chunks_processed backwards.
func (c *PostgresClient) UpdateProgress(ctx context.Context, id string, p models.Progress) error {
	const q = `
		UPDATE documents
		SET chunks_processed = $2, total_chunks = $3, processing_progress = $4, updated_at = now()
		WHERE id = $1 AND status = 'processing' AND chunks_processed <= $2
	`
	if _, err := c.db.ExecContext(ctx, q, id, p.ChunksProcessed, p.TotalChunks, p.Percent); err != nil {
		return storageErr("update progress", err)
	}
	return nil
}

func (c *PostgresClient) MarkCompleted(ctx context.Context, id string, chunkCount int, completedAt time.Time) error {
	const q = `
		UPDATE documents
		SET status = 'completed', chunk_count = $2, processing_progress = 100, error = '',
		    processing_completed_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`
	return c.execOne(ctx, "mark completed", id, q, id, chunkCount, completedAt)
}

// MarkFailed is a no-op unless the document is processing.
func (c *PostgresClient) MarkFailed(ctx context.Context, id string, message string, failedAt time.Time) error {
	const q = `
		UPDATE documents
		SET status = 'failed', error = $2, processing_failed_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`
	if _, err := c.db.ExecContext(ctx, q, id, message, failedAt); err != nil {
		return storageErr("mark failed", err)
	}
	return nil
}

func (c *PostgresClient) FailStaleProcessing(ctx context.Context, olderThan time.Time, message string) ([]string, error) {
	const q = `
		UPDATE documents
		SET status = 'failed', error = $2, processing_failed_at = now(), updated_at = now()
		WHERE status = 'processing' AND processing_started_at < $1
		RETURNING id
	`
	rows, err := c.db.QueryContext(ctx, q, olderThan, message)
	if err != nil {
		return nil, storageErr("fail stale documents", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("fail stale documents", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("fail stale documents", err)
	}
	return ids, nil
}

// DeleteDocument relies on ON DELETE CASCADE to drop the chunks.
func (c *PostgresClient) DeleteDocument(ctx context.Context, id string) error {
	return c.execOne(ctx, "delete document", id, `DELETE FROM documents WHERE id = $1`, id)
}

// InsertDocumentChunks inserts chunks in a single transaction.
func (c *PostgresClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return storageErr("insert chunks", err)
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, user_id, chunk_index, content, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return storageErr("insert chunks", err)
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		meta, err := encodeMetadata(ch.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.UserID, ch.ChunkIndex, ch.Content,
			pgvector.NewVector(ch.Embedding), meta, ch.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return storageErr("insert chunks", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("insert chunks", err)
	}
	return nil
}

func (c *PostgresClient) DeleteChunksByDocument(ctx context.Context, documentID string) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, storageErr("delete chunks", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (c *PostgresClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, user_id, chunk_index, content, embedding, metadata, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, storageErr("get chunks", err)
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var (
			ch   models.DocumentChunk
			emb  pgvector.Vector
			meta []byte
		)
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.UserID, &ch.ChunkIndex, &ch.Content, &emb, &meta, &ch.CreatedAt,
		); err != nil {
			return nil, storageErr("get chunks", err)
		}
		ch.Embedding = emb.Slice()
		if ch.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("get chunks", err)
	}
	return out, nil
}

// NearestChunks ranks the tenant's chunks by cosine distance through the HNSW index.
// Score is 1 - distance.
func (c *PostgresClient) NearestChunks(ctx context.Context, tenantID string, vec []float32, limit int) ([]models.ScoredChunk, error) {
	const q = `
		SELECT id, document_id, user_id, chunk_index, content, metadata, 1 - (embedding <=> $2) AS score
		FROM document_chunks
		WHERE user_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, q, tenantID, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, storageErr("nearest chunks", err)
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		var (
			sc    models.ScoredChunk
			meta  []byte
			score float64
		)
		if err := rows.Scan(&sc.ID, &sc.DocumentID, &sc.UserID, &sc.ChunkIndex, &sc.Content, &meta, &score); err != nil {
			return nil, storageErr("nearest chunks", err)
		}
		sc.Score = float32(score)
		if sc.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("nearest chunks", err)
	}
	return out, nil
}

func (c *PostgresClient) execOne(ctx context.Context, op, id, q string, args ...any) error {
	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return storageErr(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, core.ErrNotFound)
	}
	return nil
}

func scanPostgresDocument(row rowScanner) (*models.Document, error) {
	var (
		d                            models.Document
		status                       string
		started, completed, failedAt sql.NullTime
	)
	if err := row.Scan(
		&d.ID, &d.UserID, &d.FileName, &d.StorageURL, &d.StorageKey, &d.FileType, &status,
		&d.ChunkCount, &d.ChunksProcessed, &d.TotalChunks, &d.ProcessingProgress, &d.Error,
		&started, &completed, &failedAt, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Status = models.Status(status)
	d.ProcessingStartedAt = nullTime(started)
	d.ProcessingCompletedAt = nullTime(completed)
	d.ProcessingFailedAt = nullTime(failedAt)
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
