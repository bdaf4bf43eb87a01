package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tndao/prospectus-rag/internal/core/domain"
	"github.com/tndao/prospectus-rag/internal/infrastructure/resilience"
)

func testClient(baseURL string) *Client {
	return New(Config{
		BaseURL:         baseURL,
		APIKey:          "test-key",
		GenModel:        "gen-model",
		EmbedModel:      "embed-model",
		EmbedRatePerSec: 1000,
		EmbedRateBurst:  10,
		ResilienceConfig: resilience.Config{
			RetryMaxAttempts:    1,
			RetryInitialBackoff: time.Millisecond,
		},
	})
}

func TestEmbedBatchSendsDocumentTaskType(t *testing.T) {
	var captured struct {
		Requests []struct {
			Model    string `json:"model"`
			TaskType string `json:"taskType"`
			Content  struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"requests"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "embed-model:batchEmbedContents") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("x-goog-api-key = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.1,0.2]},{"values":[0.3,0.4]}]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(testClient(server.URL))
	vectors, err := embedder.EmbedBatch(context.Background(), []string{"phi quan ly", "gia tri tai san rong"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vectors) != 2 || vectors[1][0] != 0.3 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}

	if len(captured.Requests) != 2 {
		t.Fatalf("expected 2 embed requests, got %d", len(captured.Requests))
	}
	for _, req := range captured.Requests {
		if req.TaskType != "RETRIEVAL_DOCUMENT" {
			t.Fatalf("taskType = %q", req.TaskType)
		}
		if req.Model != "models/embed-model" {
			t.Fatalf("model = %q", req.Model)
		}
	}
	if captured.Requests[0].Content.Parts[0].Text != "phi quan ly" {
		t.Fatalf("request order not preserved: %+v", captured.Requests)
	}
}

func TestEmbedQuerySendsQueryTaskType(t *testing.T) {
	var taskType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Requests []struct {
				TaskType string `json:"taskType"`
			} `json:"requests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil && len(payload.Requests) > 0 {
			taskType = payload.Requests[0].TaskType
		}
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.5]}]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(testClient(server.URL))
	vector, err := embedder.EmbedQuery(context.Background(), "phi quan ly la bao nhieu")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vector) != 1 || vector[0] != 0.5 {
		t.Fatalf("unexpected vector: %v", vector)
	}
	if taskType != "RETRIEVAL_QUERY" {
		t.Fatalf("taskType = %q", taskType)
	}
}

func TestEmbedBatchRejectsCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.1]}]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(testClient(server.URL))
	_, err := embedder.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "API key not valid", http.StatusBadRequest)
	}))
	defer server.Close()

	embedder := NewEmbedder(testClient(server.URL))
	_, err := embedder.EmbedBatch(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "API key not valid") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestGenerateSendsHistoryRoles(t *testing.T) {
	var captured struct {
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "gen-model:generateContent") {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Phí quản lý "},{"text":"tối đa 2%/năm."}]}}]}`))
	}))
	defer server.Close()

	gen := NewGenerator(testClient(server.URL))
	history := []domain.ChatTurn{
		{Sender: "user", Text: "Quỹ này là gì?"},
		{Sender: "assistant", Text: "Quỹ trái phiếu."},
	}
	answer, err := gen.Generate(context.Background(), "assembled prompt", history)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if answer != "Phí quản lý tối đa 2%/năm." {
		t.Fatalf("unexpected answer: %q", answer)
	}

	if len(captured.Contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(captured.Contents))
	}
	if captured.Contents[0].Role != "user" || captured.Contents[1].Role != "model" {
		t.Fatalf("unexpected history roles: %+v", captured.Contents)
	}
	last := captured.Contents[2]
	if last.Role != "user" || last.Parts[0].Text != "assembled prompt" {
		t.Fatalf("prompt must be the final user turn: %+v", last)
	}
}
