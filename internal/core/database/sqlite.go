package db

import (
	"cmp"
	"container/heap"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/models"
)

// sqliteTimeLayout is fixed width so stored timestamps compare correctly as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteClient is the embedded single-file backend used for local runs and tests.
// Similarity search is a brute-force cosine scan over the tenant's chunks.
type SQLiteClient struct {
	db *sql.DB
}

var _ core.DbClient = (*SQLiteClient)(nil)

// OpenSQLite opens or creates the database file at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteClient, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection avoids "database is locked" under concurrent writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	schema, err := sqliteSchema()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &SQLiteClient{db: db}, nil
}

func (c *SQLiteClient) Close() error {
	return c.db.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, s)
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *SQLiteClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, user_id, file_name, storage_url, storage_key, file_type, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.UserID, doc.FileName, doc.StorageURL, doc.StorageKey, doc.FileType, string(doc.Status),
		formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt))
	if err != nil {
		return storageErr("create document", err)
	}
	return nil
}

func (c *SQLiteClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = ?`
	d, err := scanSQLiteDocument(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get document", err)
	}
	return d, nil
}

func (c *SQLiteClient) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, storageErr("list documents", err)
	}
	defer rows.Close()

	out := []models.Document{}
	for rows.Next() {
		d, err := scanSQLiteDocument(rows)
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

func (c *SQLiteClient) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	const q = `
		UPDATE documents
		SET status = 'processing', chunk_count = 0, chunks_processed = 0, total_chunks = 0,
		    processing_progress = 0, error = '', processing_started_at = ?1,
		    processing_completed_at = NULL, processing_failed_at = NULL, updated_at = ?1
		WHERE id = ?2 AND status <> 'completed'
	`
	return c.execOne(ctx, "mark processing", id, q, formatTime(startedAt), id)
}

func (c *SQLiteClient) UpdateProgress(ctx context.Context, id string, p models.Progress) error {
	const q = `
		UPDATE documents
		SET chunks_processed = ?1, total_chunks = ?2, processing_progress = ?3, updated_at = ?4
		WHERE id = ?5 AND status = 'processing' AND chunks_processed <= ?1
	`
	if _, err := c.db.ExecContext(ctx, q, p.ChunksProcessed, p.TotalChunks, p.Percent, formatTime(time.Now()), id); err != nil {
		return storageErr("update progress", err)
	}
	return nil
}

func (c *SQLiteClient) MarkCompleted(ctx context.Context, id string, chunkCount int, completedAt time.Time) error {
	const q = `
		UPDATE documents
		SET status = 'completed', chunk_count = ?1, processing_progress = 100, error = '',
		    processing_completed_at = ?2, updated_at = ?2
		WHERE id = ?3 AND status = 'processing'
	`
	return c.execOne(ctx, "mark completed", id, q, chunkCount, formatTime(completedAt), id)
}

func (c *SQLiteClient) MarkFailed(ctx context.Context, id string, message string, failedAt time.Time) error {
	const q = `
		UPDATE documents
		SET status = 'failed', error = ?1, processing_failed_at = ?2, updated_at = ?2
		WHERE id = ?3 AND status = 'processing'
	`
	if _, err := c.db.ExecContext(ctx, q, message, formatTime(failedAt), id); err != nil {
		return storageErr("mark failed", err)
	}
	return nil
}

func (c *SQLiteClient) FailStaleProcessing(ctx context.Context, olderThan time.Time, message string) ([]string, error) {
	const q = `
		UPDATE documents
		SET status = 'failed', error = ?1, processing_failed_at = ?2, updated_at = ?2
		WHERE status = 'processing' AND processing_started_at < ?3
		RETURNING id
	`
	rows, err := c.db.QueryContext(ctx, q, message, formatTime(time.Now()), formatTime(olderThan))
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

// DeleteDocument removes the chunks explicitly as well, in case foreign keys are off.
func (c *SQLiteClient) DeleteDocument(ctx context.Context, id string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("delete document", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, id); err != nil {
		return storageErr("delete document", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete document", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete document %s: %w", id, core.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("delete document", err)
	}
	return nil
}

func (c *SQLiteClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("insert chunks", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_chunks (id, document_id, user_id, chunk_index, content, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
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
			encodeFloat32s(ch.Embedding), meta, formatTime(ch.CreatedAt),
		); err != nil {
			_ = tx.Rollback()
			return storageErr(fmt.Sprintf("insert chunk %d", ch.ChunkIndex), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("insert chunks", err)
	}
	return nil
}

func (c *SQLiteClient) DeleteChunksByDocument(ctx context.Context, documentID string) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, storageErr("delete chunks", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (c *SQLiteClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, document_id, user_id, chunk_index, content, embedding, metadata, created_at
		FROM document_chunks WHERE document_id = ? ORDER BY chunk_index ASC`, documentID)
	if err != nil {
		return nil, storageErr("get chunks", err)
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var (
			ch        models.DocumentChunk
			blob      []byte
			meta      string
			createdAt string
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.UserID, &ch.ChunkIndex, &ch.Content, &blob, &meta, &createdAt); err != nil {
			return nil, storageErr("get chunks", err)
		}
		if ch.Embedding, err = decodeFloat32sInto(nil, blob); err != nil {
			return nil, err
		}
		if ch.Metadata, err = decodeMetadata([]byte(meta)); err != nil {
			return nil, err
		}
		if ch.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("get chunks", err)
	}
	return out, nil
}

// NearestChunks scans only id and embedding to pick the top-K, then loads full rows for the winners.
func (c *SQLiteClient) NearestChunks(ctx context.Context, tenantID string, vec []float32, limit int) ([]models.ScoredChunk, error) {
	qNorm := norm(vec)
	if qNorm == 0 || limit <= 0 {
		return nil, nil
	}

	rows, err := c.db.QueryContext(ctx, `SELECT id, embedding FROM document_chunks WHERE user_id = ?`, tenantID)
	if err != nil {
		return nil, storageErr("nearest chunks", err)
	}

	h := &idScoreHeap{}
	var buf []float32
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			rows.Close()
			return nil, storageErr("nearest chunks", err)
		}
		if buf, err = decodeFloat32sInto(buf, blob); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}
		score := cosine(vec, buf, qNorm)
		if h.Len() < limit {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, storageErr("nearest chunks", err)
	}
	if h.Len() == 0 {
		return nil, nil
	}

	scores := make(map[string]float32, h.Len())
	args := make([]any, 0, h.Len()+1)
	args = append(args, tenantID)
	for _, item := range *h {
		scores[item.ID] = item.Score
		args = append(args, item.ID)
	}

	full, err := c.db.QueryContext(ctx, `
		SELECT id, document_id, user_id, chunk_index, content, metadata
		FROM document_chunks
		WHERE user_id = ? AND id IN (?`+strings.Repeat(",?", len(scores)-1)+`)`, args...)
	if err != nil {
		return nil, storageErr("nearest chunks", err)
	}
	defer full.Close()

	out := make([]models.ScoredChunk, 0, len(scores))
	for full.Next() {
		var (
			sc   models.ScoredChunk
			meta string
		)
		if err := full.Scan(&sc.ID, &sc.DocumentID, &sc.UserID, &sc.ChunkIndex, &sc.Content, &meta); err != nil {
			return nil, storageErr("nearest chunks", err)
		}
		if sc.Metadata, err = decodeMetadata([]byte(meta)); err != nil {
			return nil, err
		}
		sc.Score = scores[sc.ID]
		out = append(out, sc)
	}
	if err := full.Err(); err != nil {
		return nil, storageErr("nearest chunks", err)
	}

	// IN does not preserve order.
	slices.SortFunc(out, func(a, b models.ScoredChunk) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return out, nil
}

func (c *SQLiteClient) execOne(ctx context.Context, op, id, q string, args ...any) error {
	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return storageErr(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, core.ErrNotFound)
	}
	return nil
}

func scanSQLiteDocument(row rowScanner) (*models.Document, error) {
	var (
		d                            models.Document
		status                       string
		started, completed, failedAt sql.NullString
		createdAt, updatedAt         string
	)
	if err := row.Scan(
		&d.ID, &d.UserID, &d.FileName, &d.StorageURL, &d.StorageKey, &d.FileType, &status,
		&d.ChunkCount, &d.ChunksProcessed, &d.TotalChunks, &d.ProcessingProgress, &d.Error,
		&started, &completed, &failedAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	d.Status = models.Status(status)

	var err error
	if d.ProcessingStartedAt, err = parseNullableTime(started); err != nil {
		return nil, err
	}
	if d.ProcessingCompletedAt, err = parseNullableTime(completed); err != nil {
		return nil, err
	}
	if d.ProcessingFailedAt, err = parseNullableTime(failedAt); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
