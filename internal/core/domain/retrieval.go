package domain

type CandidateSource string

const (
	SourceVector  CandidateSource = "vector"
	SourceLexical CandidateSource = "lexical"
)

// RetrievedChunk is a search hit from one retrieval path. Score semantics
// depend on the stage: raw store score before fusion, fused RRF score after,
// cross-encoder score after reranking.
type RetrievedChunk struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	PageNumber int     `json:"page_number"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// RetrievalCandidate is the ephemeral fusion record for one chunk: its rank
// in each source list (-1 when absent) and the accumulated fused score.
type RetrievalCandidate struct {
	Chunk       RetrievedChunk
	VectorRank  int
	LexicalRank int
	FusedScore  float64
}

// BestRank is the better of the two per-source ranks, used as tie-break.
func (c RetrievalCandidate) BestRank() int {
	switch {
	case c.VectorRank < 0:
		return c.LexicalRank
	case c.LexicalRank < 0:
		return c.VectorRank
	case c.LexicalRank < c.VectorRank:
		return c.LexicalRank
	default:
		return c.VectorRank
	}
}

type Citation struct {
	ChunkID string `json:"chunk_id"`
	Page    int    `json:"page"`
	Quote   string `json:"quote"`
}

type ChatTurn struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type Answer struct {
	Text      string           `json:"text"`
	Sources   []RetrievedChunk `json:"sources"`
	Citations []Citation       `json:"citations"`
}
