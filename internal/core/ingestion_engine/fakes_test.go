package ingestion_engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/models"
)

// memStore mimics the SQL stores' conditional updates in memory.
type memStore struct {
	mu          sync.Mutex
	docs        map[string]*models.Document
	chunks      map[string][]models.DocumentChunk
	chunkWrites int
	deletes     int
	progress    []models.Progress
}

func newMemStore(docs ...*models.Document) *memStore {
	s := &memStore{docs: map[string]*models.Document{}, chunks: map[string][]models.DocumentChunk{}}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *memStore) doc(id string) models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.docs[id]
}

func (s *memStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return nil
}

func (s *memStore) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (s *memStore) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Document
	for _, d := range s.docs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *memStore) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok || d.Status == models.StatusCompleted {
		return fmt.Errorf("mark processing %s: %w", id, core.ErrNotFound)
	}
	d.Status = models.StatusProcessing
	d.ChunksProcessed, d.TotalChunks, d.ProcessingProgress, d.ChunkCount = 0, 0, 0, 0
	d.Error = ""
	d.ProcessingStartedAt = &startedAt
	d.ProcessingFailedAt = nil
	return nil
}

func (s *memStore) UpdateProgress(ctx context.Context, id string, p models.Progress) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("update progress: %w: %w", core.ErrStorage, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.docs[id]
	if d.Status != models.StatusProcessing || p.ChunksProcessed < d.ChunksProcessed {
		return nil
	}
	d.ChunksProcessed, d.TotalChunks, d.ProcessingProgress = p.ChunksProcessed, p.TotalChunks, p.Percent
	s.progress = append(s.progress, p)
	return nil
}

func (s *memStore) MarkCompleted(ctx context.Context, id string, chunkCount int, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.docs[id]
	if d.Status != models.StatusProcessing {
		return fmt.Errorf("mark completed %s: %w", id, core.ErrNotFound)
	}
	d.Status = models.StatusCompleted
	d.ChunkCount = chunkCount
	d.ProcessingProgress = 100
	d.ProcessingCompletedAt = &completedAt
	return nil
}

func (s *memStore) MarkFailed(ctx context.Context, id string, message string, failedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.docs[id]
	if d.Status != models.StatusProcessing {
		return nil
	}
	d.Status = models.StatusFailed
	d.Error = message
	d.ProcessingFailedAt = &failedAt
	return nil
}

func (s *memStore) FailStaleProcessing(ctx context.Context, olderThan time.Time, message string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, d := range s.docs {
		if d.Status == models.StatusProcessing && d.ProcessingStartedAt != nil && d.ProcessingStartedAt.Before(olderThan) {
			d.Status = models.StatusFailed
			d.Error = message
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	delete(s.chunks, id)
	return nil
}

func (s *memStore) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("insert chunks: %w: %w", core.ErrStorage, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunkWrites++
	for _, c := range chunks {
		s.chunks[c.DocumentID] = append(s.chunks[c.DocumentID], c)
	}
	return nil
}

func (s *memStore) DeleteChunksByDocument(ctx context.Context, documentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	n := len(s.chunks[documentID])
	delete(s.chunks, documentID)
	return int64(n), nil
}

func (s *memStore) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DocumentChunk(nil), s.chunks[documentID]...), nil
}

func (s *memStore) NearestChunks(ctx context.Context, tenantID string, vec []float32, limit int) ([]models.ScoredChunk, error) {
	return nil, nil
}

type fakeFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("raw"), nil
}

// fakeParser yields n chunks regardless of input.
type fakeParser struct {
	n         int
	truncated bool
	err       error
}

func (p *fakeParser) Parse(ctx context.Context, data []byte, declaredFormat string) (*core.ParsedDocument, error) {
	if p.err != nil {
		return nil, p.err
	}
	doc := &core.ParsedDocument{TotalWindows: p.n, Truncated: p.truncated}
	var words []string
	for i := range p.n {
		content := fmt.Sprintf("chunk %d", i)
		words = append(words, content)
		doc.Chunks = append(doc.Chunks, core.ParsedChunk{
			Index:    i,
			Content:  content,
			Metadata: map[string]any{"format": "docx"},
		})
	}
	doc.FullText = strings.Join(words, " ")
	return doc, nil
}

// fakeEmbedder returns a dim-length vector. With started set, the first call
// signals it and then blocks until its context is done. err is returned from
// every call after the first failAfter ones.
type fakeEmbedder struct {
	dim       int
	err       error
	failAfter int32
	started   chan struct{}
	calls     atomic.Int32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	n := f.calls.Add(1)
	if f.started != nil && n == 1 {
		close(f.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil && n > f.failAfter {
		return nil, f.err
	}
	v := make([]float32, f.dim)
	v[0] = 1
	return v, nil
}

func newDoc(id string, status models.Status) *models.Document {
	now := time.Now()
	return &models.Document{
		ID:         id,
		UserID:     "tenant-a",
		FileName:   id + ".docx",
		StorageURL: "https://example.com/" + id + ".docx",
		FileType:   models.FileTypeDocx,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
