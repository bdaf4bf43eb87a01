package usecase

import (
	"sort"

	"github.com/tndao/prospectus-rag/internal/core/domain"
)

// fuseCandidatesRRF merges the two ranked lists with Reciprocal Rank Fusion:
// each appearance contributes 1/(K+rank+1) with 0-based ranks; a chunk absent
// from one source contributes nothing for it. Pure function of its inputs.
func fuseCandidatesRRF(vector, lexical []domain.RetrievedChunk, rrfK int) []domain.RetrievedChunk {
	if rrfK <= 0 {
		rrfK = 60
	}

	acc := make(map[string]*domain.RetrievalCandidate, len(vector)+len(lexical))
	order := make([]string, 0, len(vector)+len(lexical))

	add := func(chunks []domain.RetrievedChunk, source domain.CandidateSource) {
		for rank, chunk := range chunks {
			candidate, ok := acc[chunk.ChunkID]
			if !ok {
				candidate = &domain.RetrievalCandidate{
					Chunk:       chunk,
					VectorRank:  -1,
					LexicalRank: -1,
				}
				acc[chunk.ChunkID] = candidate
				order = append(order, chunk.ChunkID)
			}
			if source == domain.SourceVector {
				candidate.VectorRank = rank
			} else {
				candidate.LexicalRank = rank
			}
			candidate.FusedScore += 1.0 / float64(rrfK+rank+1)
		}
	}

	add(vector, domain.SourceVector)
	add(lexical, domain.SourceLexical)

	out := make([]domain.RetrievalCandidate, 0, len(order))
	for _, id := range order {
		out = append(out, *acc[id])
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		if out[i].BestRank() != out[j].BestRank() {
			return out[i].BestRank() < out[j].BestRank()
		}
		return out[i].Chunk.ChunkID < out[j].Chunk.ChunkID
	})

	fused := make([]domain.RetrievedChunk, 0, len(out))
	for _, candidate := range out {
		chunk := candidate.Chunk
		chunk.Score = candidate.FusedScore
		fused = append(fused, chunk)
	}
	return fused
}

func trimCandidates(chunks []domain.RetrievedChunk, limit int) []domain.RetrievedChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}
