package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tndao/prospectus-rag/internal/core/domain"
)

type rerankerFake struct {
	scores []float64
	err    error
	calls  int
}

func (f *rerankerFake) Score(context.Context, string, []string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

func rerankUseCase(reranker *rerankerFake, store *queryStoreFake) *SearchUseCase {
	repo := searchRepo(&domain.Document{ID: "doc-1", ActiveGeneration: "gen-1"})
	return NewSearchUseCase(
		repo,
		&queryEmbedderFake{vector: []float32{1}},
		normalizerFake{},
		store,
		reranker,
		SearchConfig{RerankEnabled: true, RerankCandidates: 3},
	)
}

func TestRerankReorders(t *testing.T) {
	store := &queryStoreFake{
		vectorHits: []domain.RetrievedChunk{hit("c1", 1, "a"), hit("c2", 2, "b"), hit("c3", 3, "c")},
	}
	reranker := &rerankerFake{scores: []float64{0.1, 0.9, 0.5}}
	uc := rerankUseCase(reranker, store)

	chunks, _, err := uc.Search(context.Background(), "doc-1", "query", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if reranker.calls != 1 {
		t.Fatalf("expected one rerank call, got %d", reranker.calls)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].ChunkID != "c2" || chunks[1].ChunkID != "c3" {
		t.Fatalf("unexpected rerank order: %s, %s", chunks[0].ChunkID, chunks[1].ChunkID)
	}
	if chunks[0].Score != 0.9 {
		t.Fatalf("expected cross-encoder score, got %v", chunks[0].Score)
	}
}

func TestRerankFailureKeepsFusedOrder(t *testing.T) {
	store := &queryStoreFake{
		vectorHits: []domain.RetrievedChunk{hit("c1", 1, "a"), hit("c2", 2, "b"), hit("c3", 3, "c")},
	}
	reranker := &rerankerFake{err: errors.New("rerank service down")}
	uc := rerankUseCase(reranker, store)

	chunks, _, err := uc.Search(context.Background(), "doc-1", "query", 2)
	if err != nil {
		t.Fatalf("rerank failure must not fail the search: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].ChunkID != "c1" || chunks[1].ChunkID != "c2" {
		t.Fatalf("expected fused order preserved, got %s, %s", chunks[0].ChunkID, chunks[1].ChunkID)
	}
}

func TestRerankScoreCountMismatchFallsBack(t *testing.T) {
	store := &queryStoreFake{
		vectorHits: []domain.RetrievedChunk{hit("c1", 1, "a"), hit("c2", 2, "b")},
	}
	reranker := &rerankerFake{scores: []float64{0.5}}
	uc := rerankUseCase(reranker, store)

	chunks, _, err := uc.Search(context.Background(), "doc-1", "query", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if chunks[0].ChunkID != "c1" {
		t.Fatalf("expected fused order on mismatch, got %s", chunks[0].ChunkID)
	}
}

func TestRerankPoolCoversRequestedK(t *testing.T) {
	hits := make([]domain.RetrievedChunk, 0, 20)
	scores := make([]float64, 0, 20)
	for i := 0; i < 20; i++ {
		hits = append(hits, hit(fmt.Sprintf("c%02d", i), i+1, "passage"))
		scores = append(scores, float64(20-i))
	}
	store := &queryStoreFake{vectorHits: hits}
	reranker := &rerankerFake{scores: scores}
	repo := searchRepo(&domain.Document{ID: "doc-1", ActiveGeneration: "gen-1"})
	uc := NewSearchUseCase(
		repo,
		&queryEmbedderFake{vector: []float32{1}},
		normalizerFake{},
		store,
		reranker,
		SearchConfig{RerankEnabled: true, RerankCandidates: 15},
	)

	chunks, _, err := uc.Search(context.Background(), "doc-1", "query", 20)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(chunks) != 20 {
		t.Fatalf("expected the full 20 requested chunks, got %d", len(chunks))
	}
}
