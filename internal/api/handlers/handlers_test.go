package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	middleware "github.com/MayukhDg/BidWinnerAI-prod/internal/api/middlewares"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	ingest "github.com/MayukhDg/BidWinnerAI-prod/internal/core/ingestion_engine"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core/remote"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/models"
)

type fakeDocs struct {
	uploaded  []byte
	filename  string
	uploadErr error
	docs      map[string]models.Document
	deleted   []string
}

func (f *fakeDocs) UploadAndCreate(ctx context.Context, userID, filename string, data []byte) (*models.Document, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploaded, f.filename = data, filename
	return &models.Document{ID: "doc-1", UserID: userID, FileName: filename, Status: models.StatusPending}, nil
}

func (f *fakeDocs) Get(ctx context.Context, userID, id string) (*models.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	if d.UserID != userID {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrForbidden)
	}
	return &d, nil
}

func (f *fakeDocs) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	var out []models.Document
	for _, d := range f.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDocs) Reprocess(ctx context.Context, userID, id string) (*models.Document, error) {
	return f.Get(ctx, userID, id)
}

func (f *fakeDocs) Delete(ctx context.Context, userID, id string) error {
	if _, err := f.Get(ctx, userID, id); err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

// withUser injects the tenant the JWT middleware would have set.
func withUser(userID string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), userID)))
	})
}

func documentRouter(h *DocumentHandler, userID string) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/documents", h.UploadDocument)
	r.Get("/api/documents", h.GetDocuments)
	r.Get("/api/documents/{id}", h.GetDocument)
	r.Post("/api/documents/{id}/process", h.ProcessDocument)
	r.Delete("/api/documents/{id}", h.DeleteDocument)
	return withUser(userID, r)
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadDocument(t *testing.T) {
	docs := &fakeDocs{}
	h := NewDocumentHandler(docs, 1024, nil)

	body, ct := multipartBody(t, "file", "proposal.docx", []byte("docx bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	documentRouter(h, "alice").ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var doc models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "alice", doc.UserID)
	assert.Equal(t, models.StatusPending, doc.Status)
	assert.Equal(t, "proposal.docx", docs.filename)
	assert.Equal(t, []byte("docx bytes"), docs.uploaded)
}

func TestUploadDocument_Errors(t *testing.T) {
	tests := []struct {
		name      string
		field     string
		data      []byte
		uploadErr error
		status    int
	}{
		{"too large", "file", bytes.Repeat([]byte("x"), 2048), nil, http.StatusRequestEntityTooLarge},
		{"missing field", "attachment", []byte("x"), nil, http.StatusBadRequest},
		{"unsupported", "file", []byte("x"), fmt.Errorf("%w: \".pdf\"", core.ErrUnsupportedFormat), http.StatusUnsupportedMediaType},
		{"storage down", "file", []byte("x"), errors.New("s3 unavailable"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewDocumentHandler(&fakeDocs{uploadErr: tt.uploadErr}, 1024, nil)
			body, ct := multipartBody(t, tt.field, "a.docx", tt.data)
			req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			documentRouter(h, "alice").ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.NotContains(t, rec.Body.String(), "s3 unavailable")
		})
	}
}

func TestDocumentRoutes_TenantScoped(t *testing.T) {
	docs := &fakeDocs{docs: map[string]models.Document{
		"a1": {ID: "a1", UserID: "alice", Status: models.StatusProcessing, ProcessingProgress: 42},
		"b1": {ID: "b1", UserID: "bob", Status: models.StatusCompleted},
	}}
	router := documentRouter(NewDocumentHandler(docs, 1024, nil), "alice")

	do := func(method, target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
		return rec
	}

	rec := do(http.MethodGet, "/api/documents/a1")
	require.Equal(t, http.StatusOK, rec.Code)
	var doc models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, 42, doc.ProcessingProgress)

	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/api/documents/b1").Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/api/documents/zz").Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodPost, "/api/documents/b1/process").Code)
	assert.Equal(t, http.StatusAccepted, do(http.MethodPost, "/api/documents/a1/process").Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodDelete, "/api/documents/b1").Code)
	assert.Equal(t, http.StatusNoContent, do(http.MethodDelete, "/api/documents/a1").Code)
	assert.Equal(t, []string{"a1"}, docs.deleted)

	rec = do(http.MethodGet, "/api/documents")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "a1", list[0].ID)
}

func TestDocumentRoutes_RequireUser(t *testing.T) {
	h := NewDocumentHandler(&fakeDocs{}, 1024, nil)
	rec := httptest.NewRecorder()
	h.GetDocuments(rec, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type fakeSearch struct {
	gotQuery, gotTenant string
	gotK                int
	err                 error
}

func (f *fakeSearch) Search(ctx context.Context, query, tenantID string, k int) ([]models.ScoredChunk, error) {
	f.gotQuery, f.gotTenant, f.gotK = query, tenantID, k
	if f.err != nil {
		return nil, f.err
	}
	return []models.ScoredChunk{{ID: "c1", DocumentID: "a1", Content: "AES-256", Score: 0.9}}, nil
}

type fakeDrafter struct{ err error }

func (f *fakeDrafter) Draft(ctx context.Context, tenantID, question string) (*models.DraftAnswer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.DraftAnswer{Question: question, Answer: "drafted for " + tenantID}, nil
}

func TestSearch(t *testing.T) {
	search := &fakeSearch{}
	h := withUser("alice", http.HandlerFunc(NewQueryHandler(search, &fakeDrafter{}, nil).Search))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"encryption","k":3}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", search.gotTenant)
	assert.Equal(t, 3, search.gotK)
	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "c1", resp.Results[0].ID)
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"negative k", `{"query":"x","k":-1}`, nil, http.StatusBadRequest},
		{"empty query", `{"query":""}`, fmt.Errorf("%w: empty query", core.ErrInvalidArgument), http.StatusBadRequest},
		{"embedding down", `{"query":"x"}`, fmt.Errorf("embed: %w", core.ErrEmbeddingService), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := withUser("alice", http.HandlerFunc(NewQueryHandler(&fakeSearch{err: tt.err}, &fakeDrafter{}, nil).Search))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestAnswer(t *testing.T) {
	h := withUser("alice", http.HandlerFunc(NewQueryHandler(&fakeSearch{}, &fakeDrafter{}, nil).Answer))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/answers", strings.NewReader(`{"question":"How do you encrypt?"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	var ans models.DraftAnswer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ans))
	assert.Equal(t, "How do you encrypt?", ans.Question)
	assert.Equal(t, "drafted for alice", ans.Answer)
}

type stubIngestor struct {
	res *ingest.IngestResult
	err error
}

func (s stubIngestor) Ingest(ctx context.Context, docID string) (*ingest.IngestResult, error) {
	return s.res, s.err
}

func TestWorkerProcessDocument(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		ing     stubIngestor
		status  int
		success bool
		kind    string
	}{
		{"ok", `{"documentId":"d1"}`, stubIngestor{res: &ingest.IngestResult{DocumentID: "d1", ChunkCount: 4}}, http.StatusOK, true, ""},
		{"missing id", `{}`, stubIngestor{}, http.StatusBadRequest, false, ""},
		{"not found", `{"documentId":"d1"}`, stubIngestor{err: fmt.Errorf("x: %w", core.ErrNotFound)}, http.StatusNotFound, false, "not_found"},
		{"empty doc", `{"documentId":"d1"}`, stubIngestor{err: fmt.Errorf("parse: %w", core.ErrEmptyOrUnreadable)}, http.StatusUnprocessableEntity, false, "empty_or_unreadable"},
		{"fetch", `{"documentId":"d1"}`, stubIngestor{err: fmt.Errorf("fetch: %w", core.ErrFetchFailed)}, http.StatusBadGateway, false, "fetch"},
		{"superseded", `{"documentId":"d1"}`, stubIngestor{err: fmt.Errorf("d1: %w", ingest.ErrSuperseded)}, http.StatusConflict, false, "superseded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewWorkerHandler(tt.ing, nil)
			rec := httptest.NewRecorder()
			h.ProcessDocument(rec, httptest.NewRequest(http.MethodPost, remote.ProcessPath, strings.NewReader(tt.body)))

			assert.Equal(t, tt.status, rec.Code)
			var resp remote.ProcessResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.success, resp.Success)
			assert.Equal(t, tt.kind, resp.Kind)
			if tt.success {
				assert.Equal(t, 4, resp.ChunkCount)
			} else {
				assert.NotEmpty(t, resp.Error)
			}
		})
	}
}

// The remote client and the worker handler agree on the wire format.
func TestWorkerRoundTrip(t *testing.T) {
	h := NewWorkerHandler(stubIngestor{err: fmt.Errorf("parse: %w", core.ErrMalformedDocument)}, nil)
	r := chi.NewRouter()
	r.With(middleware.WorkerKey(remote.WorkerKeyHdr, "secret")).Post(remote.ProcessPath, h.ProcessDocument)
	srv := httptest.NewServer(r)
	defer srv.Close()

	_, err := remote.NewClient(srv.URL, "secret", 0, nil).Ingest(context.Background(), "d1")
	assert.ErrorIs(t, err, core.ErrMalformedDocument)
	assert.False(t, core.IsRetryable(err))

	_, err = remote.NewClient(srv.URL, "wrong", 0, nil).Ingest(context.Background(), "d1")
	require.Error(t, err)
	assert.False(t, core.IsRetryable(err))
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
