package ports

import (
	"context"
	"io"

	"github.com/tndao/prospectus-rag/internal/core/domain"
)

// DocumentRepository persists documents and owns the per-document ingestion
// state machine. Transitions are conditional updates: callers learn whether
// the transition applied from the returned state, never by re-reading.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)

	// TryEnqueue moves not_started/completed/failed to queued. When the
	// document is already queued or running it returns the current state
	// and applied=false; concurrent triggers must not start a second run.
	TryEnqueue(ctx context.Context, id string) (state domain.IngestionState, applied bool, err error)

	MarkRunning(ctx context.Context, id string) error
	SetProgress(ctx context.Context, id string, progress int) error
	MarkCompleted(ctx context.Context, id, generation string) error
	MarkFailed(ctx context.Context, id, errMessage string) error

	GetExtractedFields(ctx context.Context, id string) (map[string]domain.ExtractedField, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue carries ingestion requests from the API to the worker.
type MessageQueue interface {
	PublishIngestRequested(ctx context.Context, documentID string) error
	SubscribeIngestRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// PageExtractor yields ordered page-demarcated text for a stored document.
type PageExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) ([]domain.PageText, error)
}

// TextNormalizer cleans extracted pages and folds text for lexical matching.
// Fold must be the single function applied both when deriving a chunk's
// normalized content at index-build time and to queries at search time.
type TextNormalizer interface {
	CleanPages(pages []domain.PageText) []domain.PageText
	Fold(text string) string
}

// Chunker splits cleaned pages into size-bounded drafts, never across pages.
type Chunker interface {
	Split(pages []domain.PageText) []domain.ChunkDraft
}

// Embedder builds dense vectors. EmbedBatch is order-preserving and returns
// exactly one vector per input text.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChunkStore is the two-phase committed chunk set plus both indexes.
// InsertChunks (phase a) persists rows; IndexChunks (phase b) builds the
// vector and lexical index entries from the rows inserted in phase a and
// must only run once phase a finished for the whole generation.
type ChunkStore interface {
	InsertChunks(ctx context.Context, chunks []domain.Chunk) error
	IndexChunks(ctx context.Context, documentID, generation string) error

	SearchVector(ctx context.Context, documentID, generation string, queryVector []float32, limit int) ([]domain.RetrievedChunk, error)
	SearchLexical(ctx context.Context, documentID, generation, foldedQuery string, limit int) ([]domain.RetrievedChunk, error)

	// DropGeneration removes a superseded or failed chunk set. Best-effort;
	// visibility is governed by the document's active generation, not by
	// physical deletion.
	DropGeneration(ctx context.Context, documentID, generation string) error
}

// Reranker is the optional cross-encoder scorer: one score per passage,
// order-preserving. Failures are degradation, never ingestion or query errors.
type Reranker interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// AnswerGenerator produces the final answer text from an assembled prompt.
type AnswerGenerator interface {
	Generate(ctx context.Context, prompt string, history []domain.ChatTurn) (string, error)
}
