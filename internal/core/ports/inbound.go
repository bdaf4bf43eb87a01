package ports

import (
	"context"
	"io"

	"github.com/tndao/prospectus-rag/internal/core/domain"
)

// DocumentUploader is the inbound contract for registering a source document.
type DocumentUploader interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// IngestionTrigger starts (or re-starts) background ingestion and reads state.
// Ingest is idempotent while a run is queued or running: it reports the
// current state without scheduling a second pipeline.
type IngestionTrigger interface {
	Ingest(ctx context.Context, documentID string) (domain.IngestionState, error)
	Status(ctx context.Context, documentID string) (domain.IngestionState, error)
}

// IngestionProcessor is the worker-side contract for running one pipeline.
type IngestionProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// SearchService runs hybrid retrieval against one document's indexed chunks.
type SearchService interface {
	Search(ctx context.Context, documentID, query string, k int) ([]domain.RetrievedChunk, []domain.Citation, error)
}

// ChatService answers a question against one document.
type ChatService interface {
	Chat(ctx context.Context, documentID, question string, history []domain.ChatTurn) (*domain.Answer, error)
}
