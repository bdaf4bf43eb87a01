// Package store composes the relational chunk rows with the vector and
// lexical indexes behind them.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/tndao/prospectus-rag/internal/core/domain"
	"github.com/tndao/prospectus-rag/internal/infrastructure/repository/postgres"
	"github.com/tndao/prospectus-rag/internal/infrastructure/vector/qdrant"
)

// ChunkStore commits a generation in two phases: rows first, indexes
// second. Index entries are always derived from committed rows, so a
// crash between the phases leaves a rebuildable generation, never a
// half-visible one.
type ChunkStore struct {
	chunks *postgres.ChunkRepository
	index  *qdrant.Client
}

func New(chunks *postgres.ChunkRepository, index *qdrant.Client) *ChunkStore {
	return &ChunkStore{chunks: chunks, index: index}
}

func (s *ChunkStore) InsertChunks(ctx context.Context, chunks []domain.Chunk) error {
	return s.chunks.InsertChunks(ctx, chunks)
}

func (s *ChunkStore) IndexChunks(ctx context.Context, documentID, generation string) error {
	rows, err := s.chunks.GetByGeneration(ctx, documentID, generation)
	if err != nil {
		return fmt.Errorf("load generation rows: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("generation %s of document %s has no rows", generation, documentID)
	}
	if err := s.index.IndexChunks(ctx, rows); err != nil {
		return fmt.Errorf("build indexes: %w", err)
	}
	return nil
}

func (s *ChunkStore) SearchVector(
	ctx context.Context,
	documentID, generation string,
	queryVector []float32,
	limit int,
) ([]domain.RetrievedChunk, error) {
	return s.index.SearchVector(ctx, documentID, generation, queryVector, limit)
}

func (s *ChunkStore) SearchLexical(
	ctx context.Context,
	documentID, generation, foldedQuery string,
	limit int,
) ([]domain.RetrievedChunk, error) {
	return s.index.SearchLexical(ctx, documentID, generation, foldedQuery, limit)
}

func (s *ChunkStore) DropGeneration(ctx context.Context, documentID, generation string) error {
	var errs []error
	if err := s.index.DeleteGeneration(ctx, documentID, generation); err != nil {
		errs = append(errs, fmt.Errorf("drop index generation: %w", err))
	}
	if err := s.chunks.DeleteGeneration(ctx, documentID, generation); err != nil {
		errs = append(errs, fmt.Errorf("drop row generation: %w", err))
	}
	return errors.Join(errs...)
}
