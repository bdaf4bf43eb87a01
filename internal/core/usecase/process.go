package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tndao/prospectus-rag/internal/core/domain"
	"github.com/tndao/prospectus-rag/internal/core/ports"
)

// Pipeline stage progress checkpoints. Embedding advances proportionally
// between progressChunked and progressEmbedded.
const (
	progressNormalized = 10
	progressChunked    = 20
	progressEmbedded   = 90
	progressDone       = 100
)

type ProcessConfig struct {
	EmbedBatchSize int
	EmbedWorkers   int
}

func (c ProcessConfig) normalize() ProcessConfig {
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 50
	}
	if c.EmbedWorkers <= 0 {
		c.EmbedWorkers = 2
	}
	return c
}

// ProcessDocumentUseCase runs one full ingestion for one document:
// extract -> normalize -> chunk -> embed -> two-phase store commit.
// A stage failure terminates the run in failed state; the document's
// previously active chunk generation stays visible to search untouched.
type ProcessDocumentUseCase struct {
	repo       ports.DocumentRepository
	extractor  ports.PageExtractor
	normalizer ports.TextNormalizer
	chunker    ports.Chunker
	embedder   ports.Embedder
	store      ports.ChunkStore
	cfg        ProcessConfig
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.PageExtractor,
	normalizer ports.TextNormalizer,
	chunker ports.Chunker,
	embedder ports.Embedder,
	store ports.ChunkStore,
	cfg ProcessConfig,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:       repo,
		extractor:  extractor,
		normalizer: normalizer,
		chunker:    chunker,
		embedder:   embedder,
		store:      store,
		cfg:        cfg.normalize(),
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.repo.MarkRunning(ctx, documentID); err != nil {
		return fmt.Errorf("set status=running: %w", err)
	}

	doc, generation, err := uc.runPipeline(ctx, documentID)
	if err != nil {
		if generation != "" {
			if dropErr := uc.store.DropGeneration(context.WithoutCancel(ctx), documentID, generation); dropErr != nil {
				slog.Warn("drop_failed_generation", "document_id", documentID, "generation", generation, "error", dropErr)
			}
		}
		if failErr := uc.repo.MarkFailed(ctx, documentID, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	previous := doc.ActiveGeneration
	if err := uc.repo.MarkCompleted(ctx, documentID, generation); err != nil {
		return fmt.Errorf("set status=completed: %w", err)
	}
	if previous != "" && previous != generation {
		if err := uc.store.DropGeneration(context.WithoutCancel(ctx), documentID, previous); err != nil {
			slog.Warn("drop_superseded_generation", "document_id", documentID, "generation", previous, "error", err)
		}
	}
	return nil
}

func (uc *ProcessDocumentUseCase) runPipeline(ctx context.Context, documentID string) (*domain.Document, string, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, "", fmt.Errorf("fetch document by id: %w", err)
	}

	pages, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, "", fmt.Errorf("extract pages: %w", err)
	}
	if len(pages) == 0 {
		return nil, "", domain.WrapError(domain.ErrInvalidInput, "extract pages", errors.New("no extractable text"))
	}

	pages = uc.normalizer.CleanPages(pages)
	uc.setProgress(ctx, documentID, progressNormalized)

	drafts := uc.chunker.Split(pages)
	if len(drafts) == 0 {
		return nil, "", domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}
	uc.setProgress(ctx, documentID, progressChunked)

	generation := uuid.NewString()
	chunks := uc.buildChunks(doc.ID, generation, drafts)

	if err := uc.embedChunks(ctx, documentID, chunks); err != nil {
		return nil, "", err
	}
	uc.setProgress(ctx, documentID, progressEmbedded)

	// Phase a: all rows for the generation, then phase b: both indexes from
	// exactly those rows. Visibility flips only in MarkCompleted.
	if err := uc.store.InsertChunks(ctx, chunks); err != nil {
		return nil, generation, fmt.Errorf("insert chunk rows: %w", err)
	}
	if err := uc.store.IndexChunks(ctx, doc.ID, generation); err != nil {
		return nil, generation, fmt.Errorf("index chunks: %w", err)
	}
	uc.setProgress(ctx, documentID, progressDone)

	return doc, generation, nil
}

func (uc *ProcessDocumentUseCase) buildChunks(documentID, generation string, drafts []domain.ChunkDraft) []domain.Chunk {
	now := time.Now().UTC()
	chunks := make([]domain.Chunk, 0, len(drafts))
	for _, draft := range drafts {
		chunks = append(chunks, domain.Chunk{
			ID:                uuid.NewString(),
			DocumentID:        documentID,
			Generation:        generation,
			Content:           draft.Content,
			ContentNormalized: uc.normalizer.Fold(draft.Content),
			PageNumber:        draft.PageNumber,
			CreatedAt:         now,
		})
	}
	return chunks
}

// embedChunks embeds micro-batches with bounded parallelism, reassembling
// results in original order. One exhausted batch fails the whole document.
func (uc *ProcessDocumentUseCase) embedChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	batches := batchRanges(len(chunks), uc.cfg.EmbedBatchSize)
	vectors := make([][][]float32, len(batches))

	// Workers finish out of order; the mutex keeps reported progress monotonic.
	var progressMu sync.Mutex
	completed := 0

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(uc.cfg.EmbedWorkers)

	for i, r := range batches {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			texts := make([]string, 0, r.end-r.start)
			for _, chunk := range chunks[r.start:r.end] {
				texts = append(texts, chunk.Content)
			}

			out, err := uc.embedder.EmbedBatch(groupCtx, texts)
			if err != nil {
				return fmt.Errorf("embed batch %d/%d: %w", i+1, len(batches), err)
			}
			if len(out) != len(texts) {
				return domain.WrapError(
					domain.ErrInvalidInput,
					"embed batch",
					fmt.Errorf("vectors/texts mismatch: %d/%d", len(out), len(texts)),
				)
			}
			vectors[i] = out

			progressMu.Lock()
			completed++
			progress := progressChunked + (progressEmbedded-progressChunked)*completed/len(batches)
			uc.setProgress(groupCtx, documentID, progress)
			progressMu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	for i, r := range batches {
		for j := r.start; j < r.end; j++ {
			chunks[j].Embedding = vectors[i][j-r.start]
		}
	}
	return nil
}

func (uc *ProcessDocumentUseCase) setProgress(ctx context.Context, documentID string, progress int) {
	// Progress is advisory; a write failure must not abort the pipeline.
	if err := uc.repo.SetProgress(ctx, documentID, progress); err != nil {
		slog.Warn("set_ingestion_progress", "document_id", documentID, "progress", progress, "error", err)
	}
}

type batchRange struct {
	start, end int
}

func batchRanges(total, size int) []batchRange {
	if total == 0 {
		return nil
	}
	out := make([]batchRange, 0, total/size+1)
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		out = append(out, batchRange{start: start, end: end})
	}
	return out
}
