package services

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core/parser"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/models"
)

const DocxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Enqueuer hands a document to the ingestion dispatcher.
type Enqueuer interface {
	Enqueue(ctx context.Context, docID string) error
}

type DocumentService struct {
	db       core.DocumentStore
	storage  core.ObjectClient
	queue    Enqueuer
	maxBytes int64
	logger   *zap.Logger
}

func NewDocumentService(db core.DocumentStore, storage core.ObjectClient, queue Enqueuer, maxBytes int64, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{db: db, storage: storage, queue: queue, maxBytes: maxBytes, logger: logger}
}

// UploadAndCreate stores the file, records a pending document and queues it
// for ingestion. A failed enqueue leaves the document pending for a later reprocess.
func (s *DocumentService) UploadAndCreate(ctx context.Context, userID, filename string, data []byte) (*models.Document, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	format := parser.NormalizeFormat(filepath.Ext(filename))
	if format != models.FileTypeDocx {
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, filepath.Ext(filename))
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", core.ErrFileTooLarge, len(data), s.maxBytes)
	}

	docID := uuid.NewString()
	key := s.objectKey(userID, docID, filename)

	url, err := s.storage.UploadFile(ctx, key, data, DocxContentType)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:         docID,
		UserID:     userID,
		FileName:   filename,
		StorageURL: url,
		StorageKey: key,
		FileType:   format,
		Status:     models.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		if delErr := s.storage.DeleteFile(ctx, s.storage.Bucket(), key); delErr != nil {
			s.logger.Warn("orphaned upload", zap.String("key", key), zap.Error(delErr))
		}
		return nil, err
	}

	if err := s.queue.Enqueue(ctx, doc.ID); err != nil {
		s.logger.Warn("enqueue failed, document stays pending", zap.String("document_id", doc.ID), zap.Error(err))
	}
	return doc, nil
}

// Get returns the document when userID owns it.
func (s *DocumentService) Get(ctx context.Context, userID, id string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrForbidden)
	}
	return doc, nil
}

func (s *DocumentService) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	return s.db.ListDocumentsByUser(ctx, userID)
}

// Reprocess queues the document again. Completed documents are returned as is.
func (s *DocumentService) Reprocess(ctx context.Context, userID, id string) (*models.Document, error) {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if doc.Status == models.StatusCompleted {
		return doc, nil
	}
	if err := s.queue.Enqueue(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	return doc, nil
}

// Delete removes the document, its chunks and the stored object.
func (s *DocumentService) Delete(ctx context.Context, userID, id string) error {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.db.DeleteDocument(ctx, doc.ID); err != nil {
		return err
	}
	if doc.StorageKey != "" {
		if err := s.storage.DeleteFile(ctx, s.storage.Bucket(), doc.StorageKey); err != nil {
			s.logger.Warn("could not delete stored object", zap.String("key", doc.StorageKey), zap.Error(err))
		}
	}
	return nil
}

// objectKey creates a consistent S3 key layout.
func (s *DocumentService) objectKey(userID, docID, filename string) string {
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("users", userID, "documents", docID, filename)
}
