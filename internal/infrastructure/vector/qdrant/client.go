package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tndao/prospectus-rag/internal/core/domain"
)

const (
	denseVectorName   = "dense"
	lexicalVectorName = "lexical"
)

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	vectorSize      int
	hnswM           int
	hnswEfConstruct int
	scoreThreshold  float64

	ensureMu          sync.Mutex
	ensuredCollection bool
}

type Config struct {
	BaseURL    string
	Collection string
	VectorSize int
	// HNSW index knobs applied at collection creation.
	HNSWM           int
	HNSWEfConstruct int
	// Minimum cosine similarity for dense hits; 0 disables the cutoff.
	ScoreThreshold float64
}

func New(cfg Config) *Client {
	if cfg.HNSWM <= 0 {
		cfg.HNSWM = 16
	}
	if cfg.HNSWEfConstruct <= 0 {
		cfg.HNSWEfConstruct = 64
	}
	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		collection:      cfg.Collection,
		httpClient:      &http.Client{Timeout: 60 * time.Second},
		vectorSize:      cfg.VectorSize,
		hnswM:           cfg.HNSWM,
		hnswEfConstruct: cfg.HNSWEfConstruct,
		scoreThreshold:  cfg.ScoreThreshold,
	}
}

// IndexChunks upserts one point per chunk carrying both the dense vector
// and the sparse lexical vector derived from the chunk's normalized text.
// Point IDs reuse the chunk IDs, so re-running an index build overwrites
// rather than duplicates.
func (c *Client) IndexChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := c.ensureCollection(ctx); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  map[string]any `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", chunk.ID)
		}
		points = append(points, point{
			ID: chunk.ID,
			Vector: map[string]any{
				denseVectorName:   chunk.Embedding,
				lexicalVectorName: encodeSparseDocument(chunk.ContentNormalized),
			},
			Payload: map[string]any{
				"doc_id":     chunk.DocumentID,
				"generation": chunk.Generation,
				"page":       chunk.PageNumber,
				"text":       chunk.Content,
			},
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	return c.do(ctx, http.MethodPut, url, map[string]any{"points": points}, nil, "upsert")
}

func (c *Client) SearchVector(
	ctx context.Context,
	documentID, generation string,
	queryVector []float32,
	limit int,
) ([]domain.RetrievedChunk, error) {
	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   denseVectorName,
			"vector": queryVector,
		},
		"limit":        limit,
		"with_payload": true,
		"filter":       generationFilter(documentID, generation),
	}
	if c.scoreThreshold > 0 {
		reqBody["score_threshold"] = c.scoreThreshold
	}
	return c.search(ctx, reqBody)
}

func (c *Client) SearchLexical(
	ctx context.Context,
	documentID, generation, foldedQuery string,
	limit int,
) ([]domain.RetrievedChunk, error) {
	sparse := encodeSparseQuery(foldedQuery)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   lexicalVectorName,
			"vector": sparse,
		},
		"limit":        limit,
		"with_payload": true,
		"filter":       generationFilter(documentID, generation),
	}
	return c.search(ctx, reqBody)
}

func (c *Client) search(ctx context.Context, reqBody map[string]any) ([]domain.RetrievedChunk, error) {
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)

	var searchResp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, url, reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RetrievedChunk{
			ChunkID:    r.ID,
			DocumentID: getStringPayload(r.Payload, "doc_id"),
			PageNumber: getIntPayload(r.Payload, "page"),
			Text:       getStringPayload(r.Payload, "text"),
			Score:      r.Score,
		})
	}
	return out, nil
}

// DeleteGeneration removes every point of one document generation.
func (c *Client) DeleteGeneration(ctx context.Context, documentID, generation string) error {
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	reqBody := map[string]any{"filter": generationFilter(documentID, generation)}
	return c.do(ctx, http.MethodPost, url, reqBody, nil, "delete")
}

func generationFilter(documentID, generation string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "doc_id", "match": map[string]any{"value": documentID}},
			{"key": "generation", "match": map[string]any{"value": generation}},
		},
	}
}

func (c *Client) ensureCollection(ctx context.Context) error {
	c.ensureMu.Lock()
	if c.ensuredCollection {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     c.vectorSize,
				"distance": "Cosine",
				"hnsw_config": map[string]any{
					"m":            c.hnswM,
					"ef_construct": c.hnswEfConstruct,
				},
			},
		},
		"sparse_vectors": map[string]any{
			lexicalVectorName: map[string]any{},
		},
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection request: %w", err)
	}
	defer resp.Body.Close()

	// 200/201 for create, 409 if already exists (depends on version/config).
	if resp.StatusCode == http.StatusConflict {
		c.markCollectionEnsured()
		return nil
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return fmt.Errorf("qdrant ensure collection status: %s: %s", resp.Status, msg)
		}
		return fmt.Errorf("qdrant ensure collection status: %s", resp.Status)
	}
	c.markCollectionEnsured()
	return nil
}

func (c *Client) markCollectionEnsured() {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
}

func (c *Client) do(ctx context.Context, method, url string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, msg)
		}
		return fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return int(f)
}
