package models

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a Document.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// FileTypeDocx is the only structured format the pipeline ingests.
const FileTypeDocx = "docx"

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle allows moving from s to next.
// completed is terminal; failed is only reachable from processing.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending, StatusFailed:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusProcessing || next == StatusCompleted || next == StatusFailed
	}
	return false
}

// Document represents one uploaded source file.
type Document struct {
	ID                    string     `db:"id" json:"id"`
	UserID                string     `db:"user_id" json:"user_id"`
	FileName              string     `db:"file_name" json:"file_name"`
	StorageURL            string     `db:"storage_url" json:"storage_url"` // pre-signed URL, s3:// URL or S3 object URL
	StorageKey            string     `db:"storage_key" json:"-"`
	FileType              string     `db:"file_type" json:"file_type"`
	Status                Status     `db:"status" json:"status"`
	ChunkCount            int        `db:"chunk_count" json:"chunk_count"`
	ChunksProcessed       int        `db:"chunks_processed" json:"chunks_processed"`
	TotalChunks           int        `db:"total_chunks" json:"total_chunks"`
	ProcessingProgress    int        `db:"processing_progress" json:"processing_progress"`
	Error                 string     `db:"error" json:"error,omitempty"`
	ProcessingStartedAt   *time.Time `db:"processing_started_at" json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `db:"processing_completed_at" json:"processing_completed_at,omitempty"`
	ProcessingFailedAt    *time.Time `db:"processing_failed_at" json:"processing_failed_at,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// Validate checks a document row read back from storage.
func (d *Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("document has empty id")
	}
	if d.UserID == "" {
		return fmt.Errorf("document %s has empty owner", d.ID)
	}
	if !d.Status.Valid() {
		return fmt.Errorf("document %s has unknown status %q", d.ID, d.Status)
	}
	if d.ProcessingProgress < 0 || d.ProcessingProgress > 100 {
		return fmt.Errorf("document %s has progress %d out of range", d.ID, d.ProcessingProgress)
	}
	return nil
}

// Progress is the incremental bookkeeping written after each persisted batch.
type Progress struct {
	ChunksProcessed int
	TotalChunks     int
	Percent         int
}

// NewProgress computes round(processed/total*100).
func NewProgress(processed, total int) Progress {
	p := Progress{ChunksProcessed: processed, TotalChunks: total}
	if total > 0 {
		p.Percent = (processed*100 + total/2) / total
	}
	if p.Percent > 100 {
		p.Percent = 100
	}
	return p
}

// DocumentChunk represents one embedded window of document text.
type DocumentChunk struct {
	ID         string         `db:"id" json:"id"`
	DocumentID string         `db:"document_id" json:"document_id"`
	UserID     string         `db:"user_id" json:"user_id"`
	ChunkIndex int            `db:"chunk_index" json:"chunk_index"`
	Content    string         `db:"content" json:"content"`
	Embedding  []float32      `db:"embedding" json:"-"` // pgvector column
	Metadata   map[string]any `db:"metadata" json:"metadata"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// ScoredChunk is a retrieval hit. The vector is never returned to callers.
type ScoredChunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	UserID     string         `json:"-"`
	ChunkIndex int            `json:"chunk_index"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	Score      float32        `json:"score"`
}

// DraftAnswer is an LLM-drafted answer to an RFP question with the context it used.
type DraftAnswer struct {
	Question string        `json:"question"`
	Answer   string        `json:"answer"`
	Context  []ScoredChunk `json:"context_used"`
}
