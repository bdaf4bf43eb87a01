package domain

import "time"

// PageText is one page of extracted source text, the canonical form produced
// at the extraction boundary. Page numbers are 1-based.
type PageText struct {
	PageNumber int
	Text       string
}

// Chunk is the atomic retrieval unit. ContentNormalized is derived from
// Content by the same fold function applied to queries; the embedding is
// always computed from Content, never from the normalized form.
type Chunk struct {
	ID                string
	DocumentID        string
	Generation        string
	Content           string
	ContentNormalized string
	PageNumber        int
	Embedding         []float32
	CreatedAt         time.Time
}

// ChunkDraft is a chunk before its identity, normalization and embedding are
// assigned by the ingestion pipeline.
type ChunkDraft struct {
	Content    string
	PageNumber int
}
