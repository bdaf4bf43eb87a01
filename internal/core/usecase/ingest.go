package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tndao/prospectus-rag/internal/core/domain"
	"github.com/tndao/prospectus-rag/internal/core/ports"
)

type UploadDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
}

func NewUploadDocumentUseCase(repo ports.DocumentRepository, storage ports.ObjectStorage) *UploadDocumentUseCase {
	return &UploadDocumentUseCase{repo: repo, storage: storage}
}

func (uc *UploadDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: storageKey,
		Ingestion:   domain.IngestionState{Status: domain.IngestionNotStarted},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}
	return doc, nil
}

// IngestDocumentUseCase schedules background ingestion with the single-flight
// guard: a document already queued or running is never enqueued twice.
type IngestDocumentUseCase struct {
	repo  ports.DocumentRepository
	queue ports.MessageQueue
}

func NewIngestDocumentUseCase(repo ports.DocumentRepository, queue ports.MessageQueue) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{repo: repo, queue: queue}
}

func (uc *IngestDocumentUseCase) Ingest(ctx context.Context, documentID string) (domain.IngestionState, error) {
	state, applied, err := uc.repo.TryEnqueue(ctx, documentID)
	if err != nil {
		return domain.IngestionState{}, fmt.Errorf("enqueue ingestion: %w", err)
	}
	if !applied {
		slog.Info("ingestion_already_in_flight", "document_id", documentID, "status", state.Status)
		return state, nil
	}

	if err := uc.queue.PublishIngestRequested(ctx, documentID); err != nil {
		// Roll the guard back so an explicit retry is possible.
		if failErr := uc.repo.MarkFailed(ctx, documentID, "publish ingestion request: "+err.Error()); failErr != nil {
			return domain.IngestionState{}, fmt.Errorf("publish ingestion request: %w; mark failed: %v", err, failErr)
		}
		return domain.IngestionState{}, fmt.Errorf("publish ingestion request: %w", err)
	}
	return state, nil
}

func (uc *IngestDocumentUseCase) Status(ctx context.Context, documentID string) (domain.IngestionState, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return domain.IngestionState{}, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc.Ingestion, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
