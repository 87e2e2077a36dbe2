package ingestion_engine

import (
	"time"
)

// Config tunes the pipeline.
//
// MaxChunks:   chunks beyond this many are dropped with a warning.
// BatchSize:   chunks embedded and written per transaction.
// EmbedDim:    expected vector length; 0 skips the check.
// FailTimeout: budget for the failure write, which runs detached from the caller's context.
type Config struct {
	MaxChunks   int
	BatchSize   int
	EmbedDim    int
	FailTimeout time.Duration
}

const (
	DefaultMaxChunks   = 500
	DefaultBatchSize   = 5
	DefaultFailTimeout = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxChunks <= 0 {
		c.MaxChunks = DefaultMaxChunks
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FailTimeout <= 0 {
		c.FailTimeout = DefaultFailTimeout
	}
	return c
}

// IngestResult reports the outcome of one successful Ingest call.
type IngestResult struct {
	DocumentID string `json:"documentId"`
	Skipped    bool   `json:"skipped"`
	ChunkCount int    `json:"chunkCount"`
	Truncated  bool   `json:"truncated"`
}
