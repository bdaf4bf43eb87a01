package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tndao/prospectus-rag/internal/core/domain"
)

type queryEmbedderFake struct {
	vector []float32
	err    error
}

func (f *queryEmbedderFake) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (f *queryEmbedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type queryStoreFake struct {
	vectorHits []domain.RetrievedChunk
	vectorErr  error

	lexicalHits  []domain.RetrievedChunk
	lexicalErr   error
	lexicalQuery string
}

func (f *queryStoreFake) InsertChunks(context.Context, []domain.Chunk) error {
	return errors.New("not implemented")
}

func (f *queryStoreFake) IndexChunks(context.Context, string, string) error {
	return errors.New("not implemented")
}

func (f *queryStoreFake) SearchVector(context.Context, string, string, []float32, int) ([]domain.RetrievedChunk, error) {
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return f.vectorHits, nil
}

func (f *queryStoreFake) SearchLexical(_ context.Context, _ string, _ string, foldedQuery string, _ int) ([]domain.RetrievedChunk, error) {
	f.lexicalQuery = foldedQuery
	if f.lexicalErr != nil {
		return nil, f.lexicalErr
	}
	return f.lexicalHits, nil
}

func (f *queryStoreFake) DropGeneration(context.Context, string, string) error { return nil }

func hit(id string, page int, text string) domain.RetrievedChunk {
	return domain.RetrievedChunk{ChunkID: id, DocumentID: "doc-1", PageNumber: page, Text: text}
}

func searchRepo(doc *domain.Document) *processRepoFake {
	return &processRepoFake{doc: doc}
}

func TestSearchUnindexedDocumentReturnsEmpty(t *testing.T) {
	repo := searchRepo(&domain.Document{ID: "doc-1"})
	uc := NewSearchUseCase(repo, &queryEmbedderFake{}, normalizerFake{}, &queryStoreFake{}, nil, SearchConfig{})

	chunks, citations, err := uc.Search(context.Background(), "doc-1", "phí quản lý", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(chunks) != 0 || len(citations) != 0 {
		t.Fatalf("expected empty result for unindexed document")
	}
}

func TestSearchMissingDocumentFails(t *testing.T) {
	repo := searchRepo(nil)
	uc := NewSearchUseCase(repo, &queryEmbedderFake{}, normalizerFake{}, &queryStoreFake{}, nil, SearchConfig{})

	_, _, err := uc.Search(context.Background(), "missing", "query", 5)
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSearchDegradesToLexicalOnEmbedFailure(t *testing.T) {
	repo := searchRepo(&domain.Document{ID: "doc-1", ActiveGeneration: "gen-1"})
	store := &queryStoreFake{
		lexicalHits: []domain.RetrievedChunk{hit("c1", 2, "phi quan ly 1.5%")},
	}
	uc := NewSearchUseCase(
		repo,
		&queryEmbedderFake{err: context.DeadlineExceeded},
		normalizerFake{},
		store,
		nil,
		SearchConfig{},
	)

	chunks, _, err := uc.Search(context.Background(), "doc-1", "Phí Quản Lý", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(chunks) != 1 || chunks[0].ChunkID != "c1" {
		t.Fatalf("expected lexical-only result, got %+v", chunks)
	}
}

func TestSearchFoldsLexicalQuery(t *testing.T) {
	repo := searchRepo(&domain.Document{ID: "doc-1", ActiveGeneration: "gen-1"})
	store := &queryStoreFake{}
	uc := NewSearchUseCase(repo, &queryEmbedderFake{vector: []float32{1}}, normalizerFake{}, store, nil, SearchConfig{})

	_, _, err := uc.Search(context.Background(), "doc-1", "PHI QUAN LY", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if store.lexicalQuery != "phi quan ly" {
		t.Fatalf("expected folded lexical query, got %q", store.lexicalQuery)
	}
}

func TestSearchBothPathsEmptyReturnsEmpty(t *testing.T) {
	repo := searchRepo(&domain.Document{ID: "doc-1", ActiveGeneration: "gen-1"})
	uc := NewSearchUseCase(repo, &queryEmbedderFake{vector: []float32{1}}, normalizerFake{}, &queryStoreFake{}, nil, SearchConfig{})

	chunks, _, err := uc.Search(context.Background(), "doc-1", "nothing relevant", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected empty result, got %+v", chunks)
	}
}

func TestSearchFusesBothPaths(t *testing.T) {
	repo := searchRepo(&domain.Document{ID: "doc-1", ActiveGeneration: "gen-1"})
	store := &queryStoreFake{
		vectorHits:  []domain.RetrievedChunk{hit("c1", 1, "a"), hit("c2", 2, "b")},
		lexicalHits: []domain.RetrievedChunk{hit("c2", 2, "b"), hit("c3", 3, "c")},
	}
	uc := NewSearchUseCase(repo, &queryEmbedderFake{vector: []float32{1}}, normalizerFake{}, store, nil, SearchConfig{})

	chunks, citations, err := uc.Search(context.Background(), "doc-1", "query", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected top 2 fused chunks, got %d", len(chunks))
	}
	// c2 appears in both lists and must fuse to the top.
	if chunks[0].ChunkID != "c2" {
		t.Fatalf("expected c2 first, got %s", chunks[0].ChunkID)
	}
	if len(citations) != 2 || citations[0].ChunkID != "c2" || citations[0].Page != 2 {
		t.Fatalf("unexpected citations %+v", citations)
	}
}

func TestSearchTrimsToRequestedK(t *testing.T) {
	repo := searchRepo(&domain.Document{ID: "doc-1", ActiveGeneration: "gen-1"})
	var hits []domain.RetrievedChunk
	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		hits = append(hits, hit(id, 1, strings.ToUpper(id)))
	}
	store := &queryStoreFake{vectorHits: hits}
	uc := NewSearchUseCase(repo, &queryEmbedderFake{vector: []float32{1}}, normalizerFake{}, store, nil, SearchConfig{})

	chunks, _, err := uc.Search(context.Background(), "doc-1", "query", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
}
