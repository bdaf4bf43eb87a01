package usecase

import (
	"context"
	"log/slog"
	"sort"

	"github.com/tndao/prospectus-rag/internal/core/domain"
)

// rerank re-scores the fused candidates with the cross-encoder and truncates
// to k. Reranking is best-effort: any collaborator failure keeps the fused
// order and set exactly as they were.
func (uc *SearchUseCase) rerank(
	ctx context.Context,
	query string,
	fused []domain.RetrievedChunk,
	k int,
) []domain.RetrievedChunk {
	if len(fused) == 0 {
		return fused
	}

	passages := make([]string, 0, len(fused))
	for _, chunk := range fused {
		passages = append(passages, chunk.Text)
	}

	scores, err := uc.reranker.Score(ctx, query, passages)
	if err != nil || len(scores) != len(fused) {
		slog.Warn("rerank_skipped",
			"candidates", len(fused),
			"scores", len(scores),
			"error", err,
		)
		return trimCandidates(fused, k)
	}

	reranked := make([]domain.RetrievedChunk, len(fused))
	copy(reranked, fused)
	for i := range reranked {
		reranked[i].Score = scores[i]
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		if reranked[i].Score != reranked[j].Score {
			return reranked[i].Score > reranked[j].Score
		}
		return reranked[i].ChunkID < reranked[j].ChunkID
	})
	return trimCandidates(reranked, k)
}
