package ingestion_engine

import "context"

// Ingestor runs the full ingestion of one document. *Pipeline does it in process;
// remote.Client delegates to a worker.
type Ingestor interface {
	Ingest(ctx context.Context, docID string) (*IngestResult, error)
}
