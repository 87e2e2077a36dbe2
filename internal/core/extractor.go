package core

import "context"

// ParsedChunk is one chunk produced by a DocumentParser, ready for embedding.
type ParsedChunk struct {
	Index    int
	Content  string
	Metadata map[string]any
}

// ParsedDocument is the result of parsing one source file.
//
// TotalWindows is the number of windows the full text would produce; when it is
// larger than len(Chunks) the parser cut the tail and Truncated is set.
type ParsedDocument struct {
	FullText     string
	Chunks       []ParsedChunk
	TotalWindows int
	Truncated    bool
}

// DocumentParser extracts text from a declared format and splits it into chunks.
type DocumentParser interface {
	Parse(ctx context.Context, data []byte, declaredFormat string) (*ParsedDocument, error)
}

// Fetcher retrieves source bytes for a stored document URL, enforcing a byte cap.
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL string) ([]byte, error)
}
