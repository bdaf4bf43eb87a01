package config

import "testing"

func TestLoadIncludesRetrievalDefaults(t *testing.T) {
	t.Setenv("VECTOR_CANDIDATES", "")
	t.Setenv("LEXICAL_CANDIDATES", "")
	t.Setenv("FUSION_RRF_K", "")
	t.Setenv("VECTOR_SCORE_MIN", "")
	t.Setenv("RERANK_ENABLED", "")
	t.Setenv("RAG_TOP_K", "")

	cfg := Load()
	if cfg.VectorCandidates != 30 {
		t.Fatalf("expected default vector candidates 30, got %d", cfg.VectorCandidates)
	}
	if cfg.LexicalCandidates != 50 {
		t.Fatalf("expected default lexical candidates 50, got %d", cfg.LexicalCandidates)
	}
	if cfg.FusionRRFK != 60 {
		t.Fatalf("expected default fusion rrf k 60, got %d", cfg.FusionRRFK)
	}
	if cfg.VectorScoreMin != 0.15 {
		t.Fatalf("expected default vector score min 0.15, got %f", cfg.VectorScoreMin)
	}
	if cfg.RerankEnabled {
		t.Fatalf("expected reranking disabled by default")
	}
	if cfg.RAGTopK != 5 {
		t.Fatalf("expected default top k 5, got %d", cfg.RAGTopK)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("VECTOR_CANDIDATES", "40")
	t.Setenv("FUSION_RRF_K", "75")
	t.Setenv("RERANK_ENABLED", "true")
	t.Setenv("RERANK_CANDIDATES", "12")
	t.Setenv("EMBED_RATE_PER_SEC", "0.5")
	t.Setenv("QDRANT_COLLECTION", "custom_chunks")

	cfg := Load()
	if cfg.VectorCandidates != 40 {
		t.Fatalf("expected vector candidates 40, got %d", cfg.VectorCandidates)
	}
	if cfg.FusionRRFK != 75 {
		t.Fatalf("expected fusion rrf k 75, got %d", cfg.FusionRRFK)
	}
	if !cfg.RerankEnabled {
		t.Fatalf("expected reranking enabled")
	}
	if cfg.RerankCandidates != 12 {
		t.Fatalf("expected rerank candidates 12, got %d", cfg.RerankCandidates)
	}
	if cfg.EmbedRatePerSec != 0.5 {
		t.Fatalf("expected embed rate 0.5, got %f", cfg.EmbedRatePerSec)
	}
	if cfg.QdrantCollection != "custom_chunks" {
		t.Fatalf("expected collection override, got %q", cfg.QdrantCollection)
	}
}

func TestLoadFallsBackOnMalformedNumbers(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "not-a-number")
	t.Setenv("VECTOR_SCORE_MIN", "abc")

	cfg := Load()
	if cfg.ChunkSize != 800 {
		t.Fatalf("expected fallback chunk size 800, got %d", cfg.ChunkSize)
	}
	if cfg.VectorScoreMin != 0.15 {
		t.Fatalf("expected fallback score min 0.15, got %f", cfg.VectorScoreMin)
	}
}
