package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PipelineConfig tunes ingestion. It can be overridden by a YAML file named in PIPELINE_CONFIG.
type PipelineConfig struct {
	ParserEngine       string        `yaml:"parser_engine"`
	ChunkTokens        int           `yaml:"chunk_tokens"`
	ChunkOverlapTokens int           `yaml:"chunk_overlap_tokens"`
	MaxParseChunks     int           `yaml:"max_parse_chunks"`
	MaxChunks          int           `yaml:"max_chunks"`
	BatchSize          int           `yaml:"batch_size"`
	MaxFileBytes       int64         `yaml:"max_file_bytes"`
	RetryAttempts      int           `yaml:"retry_attempts"`
	RetryBaseDelay     time.Duration `yaml:"retry_base_delay"`
	RetryMaxJitter     time.Duration `yaml:"retry_max_jitter"`
	ProcessingTimeout  time.Duration `yaml:"processing_timeout"`
	ReaperInterval     time.Duration `yaml:"reaper_interval"`
	MaxDeliveries      int           `yaml:"max_deliveries"`
}

func DefaultPipeline() PipelineConfig {
	return PipelineConfig{
		ParserEngine:       "docx",
		ChunkTokens:        1000,
		ChunkOverlapTokens: 200,
		MaxParseChunks:     200,
		MaxChunks:          500,
		BatchSize:          5,
		MaxFileBytes:       5 << 20,
		RetryAttempts:      5,
		RetryBaseDelay:     time.Second,
		RetryMaxJitter:     time.Second,
		ProcessingTimeout:  15 * time.Minute,
		ReaperInterval:     time.Minute,
		MaxDeliveries:      3,
	}
}

// loadPipelineFile overlays the YAML file at path on top of p. Keys absent from
// the file keep their current values.
func loadPipelineFile(path string, p *PipelineConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pipeline config: %w", err)
	}
	var file struct {
		Pipeline PipelineConfig `yaml:"pipeline"`
	}
	file.Pipeline = *p
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse pipeline config %s: %w", path, err)
	}
	*p = file.Pipeline
	return nil
}

func (p PipelineConfig) Validate() error {
	var errs []error
	if p.ParserEngine != "docx" && p.ParserEngine != "docconv" {
		errs = append(errs, fmt.Errorf("parser_engine %q not supported", p.ParserEngine))
	}
	if p.ChunkTokens <= 0 {
		errs = append(errs, errors.New("chunk_tokens must be positive"))
	}
	if p.ChunkOverlapTokens < 0 || p.ChunkOverlapTokens >= p.ChunkTokens {
		errs = append(errs, errors.New("chunk_overlap_tokens must be in [0, chunk_tokens)"))
	}
	if p.BatchSize <= 0 {
		errs = append(errs, errors.New("batch_size must be positive"))
	}
	if p.MaxChunks <= 0 || p.MaxParseChunks <= 0 {
		errs = append(errs, errors.New("max_chunks and max_parse_chunks must be positive"))
	}
	if p.MaxFileBytes <= 0 {
		errs = append(errs, errors.New("max_file_bytes must be positive"))
	}
	if p.ProcessingTimeout <= 0 || p.ReaperInterval <= 0 {
		errs = append(errs, errors.New("processing_timeout and reaper_interval must be positive"))
	}
	return errors.Join(errs...)
}
