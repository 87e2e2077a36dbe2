package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/models"
)

type memDocs struct {
	mu      sync.Mutex
	docs    map[string]*models.Document
	deleted []string
}

func newMemDocs(docs ...*models.Document) *memDocs {
	m := &memDocs{docs: map[string]*models.Document{}}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return m
}

func (m *memDocs) CreateDocument(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return nil
}
func (m *memDocs) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}
func (m *memDocs) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	var out []models.Document
	for _, d := range m.docs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}
func (m *memDocs) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	return nil
}
func (m *memDocs) UpdateProgress(ctx context.Context, id string, p models.Progress) error { return nil }
func (m *memDocs) MarkCompleted(ctx context.Context, id string, n int, at time.Time) error {
	return nil
}
func (m *memDocs) MarkFailed(ctx context.Context, id, msg string, at time.Time) error { return nil }
func (m *memDocs) FailStaleProcessing(ctx context.Context, t time.Time, msg string) ([]string, error) {
	return nil, nil
}
func (m *memDocs) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type memObjects struct {
	uploaded map[string][]byte
	deleted  []string
}

func (o *memObjects) UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if o.uploaded == nil {
		o.uploaded = map[string][]byte{}
	}
	o.uploaded[key] = data
	return "s3://docs/" + key, nil
}
func (o *memObjects) DeleteFile(ctx context.Context, bucket, key string) error {
	o.deleted = append(o.deleted, bucket+"/"+key)
	return nil
}
func (o *memObjects) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	return nil, nil
}
func (o *memObjects) ObjectSize(ctx context.Context, bucket, key string) (int64, error) {
	return 0, nil
}
func (o *memObjects) Bucket() string { return "docs" }

type recordingQueue struct {
	ids []string
	err error
}

func (q *recordingQueue) Enqueue(ctx context.Context, docID string) error {
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, docID)
	return nil
}

func TestUploadAndCreate(t *testing.T) {
	docs, objs, queue := newMemDocs(), &memObjects{}, &recordingQueue{}
	svc := NewDocumentService(docs, objs, queue, 1024, nil)

	doc, err := svc.UploadAndCreate(context.Background(), "alice", "Past Proposal.DOCX", []byte("data"))

	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, doc.Status)
	assert.Equal(t, models.FileTypeDocx, doc.FileType)
	assert.Equal(t, "alice", doc.UserID)
	assert.True(t, strings.HasPrefix(doc.StorageKey, "users/alice/documents/"+doc.ID))
	assert.True(t, strings.HasSuffix(doc.StorageKey, "Past_Proposal.DOCX"))
	assert.Equal(t, "s3://docs/"+doc.StorageKey, doc.StorageURL)
	assert.Equal(t, []string{doc.ID}, queue.ids)
	assert.Contains(t, objs.uploaded, doc.StorageKey)
}

func TestUploadAndCreate_Rejections(t *testing.T) {
	svc := NewDocumentService(newMemDocs(), &memObjects{}, &recordingQueue{}, 4, nil)

	_, err := svc.UploadAndCreate(context.Background(), "alice", "notes.pdf", []byte("x"))
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)

	_, err = svc.UploadAndCreate(context.Background(), "alice", "big.docx", []byte("too large"))
	assert.ErrorIs(t, err, core.ErrFileTooLarge)
}

func TestUploadAndCreate_EnqueueFailureKeepsDocument(t *testing.T) {
	docs := newMemDocs()
	svc := NewDocumentService(docs, &memObjects{}, &recordingQueue{err: errors.New("queue full")}, 0, nil)

	doc, err := svc.UploadAndCreate(context.Background(), "alice", "a.docx", []byte("x"))

	require.NoError(t, err)
	assert.Contains(t, docs.docs, doc.ID)
}

func TestGet_OtherTenantIsForbidden(t *testing.T) {
	docs := newMemDocs(&models.Document{ID: "d1", UserID: "alice", Status: models.StatusPending})
	svc := NewDocumentService(docs, &memObjects{}, &recordingQueue{}, 0, nil)

	_, err := svc.Get(context.Background(), "bob", "d1")
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = svc.Get(context.Background(), "alice", "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestReprocess(t *testing.T) {
	docs := newMemDocs(
		&models.Document{ID: "done", UserID: "alice", Status: models.StatusCompleted},
		&models.Document{ID: "broken", UserID: "alice", Status: models.StatusFailed},
	)
	queue := &recordingQueue{}
	svc := NewDocumentService(docs, &memObjects{}, queue, 0, nil)

	_, err := svc.Reprocess(context.Background(), "alice", "done")
	require.NoError(t, err)
	_, err = svc.Reprocess(context.Background(), "alice", "broken")
	require.NoError(t, err)

	assert.Equal(t, []string{"broken"}, queue.ids)
}

func TestDelete_RemovesObject(t *testing.T) {
	docs := newMemDocs(&models.Document{ID: "d1", UserID: "alice", StorageKey: "users/alice/documents/d1/a.docx", Status: models.StatusCompleted})
	objs := &memObjects{}
	svc := NewDocumentService(docs, objs, &recordingQueue{}, 0, nil)

	assert.ErrorIs(t, svc.Delete(context.Background(), "bob", "d1"), core.ErrForbidden)
	require.NoError(t, svc.Delete(context.Background(), "alice", "d1"))

	assert.Equal(t, []string{"d1"}, docs.deleted)
	assert.Equal(t, []string{"docs/users/alice/documents/d1/a.docx"}, objs.deleted)
}

type stubSearch struct {
	hits   []models.ScoredChunk
	gotK   int
	tenant string
}

func (s *stubSearch) Search(ctx context.Context, query, tenantID string, k int) ([]models.ScoredChunk, error) {
	s.gotK, s.tenant = k, tenantID
	return s.hits, nil
}

type stubLLM struct{ system, user string }

func (l *stubLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	l.system, l.user = systemPrompt, userPrompt
	return "We encrypt data at rest.", nil
}

func TestDraft(t *testing.T) {
	search := &stubSearch{hits: []models.ScoredChunk{{Content: "AES-256 at rest"}, {Content: "TLS 1.3 in transit"}}}
	llm := &stubLLM{}
	svc := NewAnswerService(search, llm, nil)

	ans, err := svc.Draft(context.Background(), "alice", "  How is data encrypted?  ")

	require.NoError(t, err)
	assert.Equal(t, "How is data encrypted?", ans.Question)
	assert.Equal(t, "We encrypt data at rest.", ans.Answer)
	assert.Len(t, ans.Context, 2)
	assert.Equal(t, 10, search.gotK)
	assert.Equal(t, "alice", search.tenant)
	assert.Contains(t, llm.user, "AES-256 at rest\n\nTLS 1.3 in transit")
	assert.Contains(t, llm.user, "Question: How is data encrypted?")
	assert.NotEmpty(t, llm.system)
}

func TestDraft_EmptyQuestion(t *testing.T) {
	svc := NewAnswerService(&stubSearch{}, &stubLLM{}, nil)
	_, err := svc.Draft(context.Background(), "alice", " ")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}
