package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tndao/prospectus-rag/internal/core/domain"
	"github.com/tndao/prospectus-rag/internal/core/ports"
)

type SearchConfig struct {
	VectorCandidates  int
	LexicalCandidates int
	RRFK              int
	RerankEnabled     bool
	RerankCandidates  int
	TopK              int
	QueryEmbedTimeout time.Duration
}

func (c SearchConfig) normalize() SearchConfig {
	if c.VectorCandidates <= 0 {
		c.VectorCandidates = 30
	}
	if c.LexicalCandidates <= 0 {
		c.LexicalCandidates = 50
	}
	if c.RRFK <= 0 {
		c.RRFK = 60
	}
	if c.RerankCandidates <= 0 {
		c.RerankCandidates = 15
	}
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.QueryEmbedTimeout <= 0 {
		c.QueryEmbedTimeout = 10 * time.Second
	}
	return c
}

// SearchUseCase runs hybrid retrieval for one document: dense and lexical
// candidate generation, RRF fusion, then optional cross-encoder reranking.
type SearchUseCase struct {
	repo       ports.DocumentRepository
	embedder   ports.Embedder
	normalizer ports.TextNormalizer
	store      ports.ChunkStore
	reranker   ports.Reranker
	cfg        SearchConfig
}

func NewSearchUseCase(
	repo ports.DocumentRepository,
	embedder ports.Embedder,
	normalizer ports.TextNormalizer,
	store ports.ChunkStore,
	reranker ports.Reranker,
	cfg SearchConfig,
) *SearchUseCase {
	return &SearchUseCase{
		repo:       repo,
		embedder:   embedder,
		normalizer: normalizer,
		store:      store,
		reranker:   reranker,
		cfg:        cfg.normalize(),
	}
}

func (uc *SearchUseCase) Search(
	ctx context.Context,
	documentID, query string,
	k int,
) ([]domain.RetrievedChunk, []domain.Citation, error) {
	chunks, err := uc.retrieve(ctx, documentID, query, k)
	if err != nil {
		return nil, nil, err
	}
	return chunks, citationsFor(chunks), nil
}

func (uc *SearchUseCase) retrieve(
	ctx context.Context,
	documentID, query string,
	k int,
) ([]domain.RetrievedChunk, error) {
	if k <= 0 {
		k = uc.cfg.TopK
	}

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	// No completed ingestion means no indexed chunks: a valid empty result.
	if !doc.Searchable() {
		return nil, nil
	}

	vectorHits := uc.searchVector(ctx, doc, query)
	lexicalHits := uc.searchLexical(ctx, doc, query)
	if len(vectorHits) == 0 && len(lexicalHits) == 0 {
		return nil, nil
	}

	fused := fuseCandidatesRRF(vectorHits, lexicalHits, uc.cfg.RRFK)

	if uc.cfg.RerankEnabled && uc.reranker != nil {
		// The rerank pool must never shrink below k or the caller gets
		// fewer results than the fused set could supply.
		pool := uc.cfg.RerankCandidates
		if k > pool {
			pool = k
		}
		candidates := trimCandidates(fused, pool)
		return uc.rerank(ctx, query, candidates, k), nil
	}
	return trimCandidates(fused, k), nil
}

// searchVector embeds the query under its own timeout and runs dense search.
// Any failure on this path degrades retrieval to lexical-only.
func (uc *SearchUseCase) searchVector(ctx context.Context, doc *domain.Document, query string) []domain.RetrievedChunk {
	embedCtx, cancel := context.WithTimeout(ctx, uc.cfg.QueryEmbedTimeout)
	defer cancel()

	queryVector, err := uc.embedder.EmbedQuery(embedCtx, query)
	if err != nil {
		uc.logDegraded(doc.ID, "embed query", err)
		return nil
	}

	hits, err := uc.store.SearchVector(ctx, doc.ID, doc.ActiveGeneration, queryVector, uc.cfg.VectorCandidates)
	if err != nil {
		uc.logDegraded(doc.ID, "vector search", err)
		return nil
	}
	return hits
}

func (uc *SearchUseCase) searchLexical(ctx context.Context, doc *domain.Document, query string) []domain.RetrievedChunk {
	folded := uc.normalizer.Fold(query)
	hits, err := uc.store.SearchLexical(ctx, doc.ID, doc.ActiveGeneration, folded, uc.cfg.LexicalCandidates)
	if err != nil {
		uc.logDegraded(doc.ID, "lexical search", err)
		return nil
	}
	return hits
}

func (uc *SearchUseCase) logDegraded(documentID, operation string, err error) {
	level := slog.LevelWarn
	if errors.Is(err, context.DeadlineExceeded) {
		level = slog.LevelInfo
	}
	slog.Log(context.Background(), level, "retrieval_path_degraded",
		"document_id", documentID,
		"operation", operation,
		"error", err,
	)
}

func citationsFor(chunks []domain.RetrievedChunk) []domain.Citation {
	if len(chunks) == 0 {
		return nil
	}
	out := make([]domain.Citation, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, domain.Citation{
			ChunkID: chunk.ChunkID,
			Page:    chunk.PageNumber,
			Quote:   shortQuote(chunk.Text, 120),
		})
	}
	return out
}

func shortQuote(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "…"
}
