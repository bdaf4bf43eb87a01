package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tndao/prospectus-rag/internal/core/domain"
	"github.com/tndao/prospectus-rag/internal/infrastructure/resilience"
)

// Client talks to a Gemini-style generative language API over REST.
type Client struct {
	baseURL    string
	apiKey     string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
	// One limiter shared by all embedding calls keeps batch dispatch under
	// the collaborator's rate limit even with parallel workers.
	embedLimiter *rate.Limiter
}

type Config struct {
	BaseURL          string
	APIKey           string
	GenModel         string
	EmbedModel       string
	EmbedRatePerSec  float64
	EmbedRateBurst   int
	RequestTimeout   time.Duration
	ResilienceConfig resilience.Config
}

func New(cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	if cfg.EmbedRatePerSec <= 0 {
		cfg.EmbedRatePerSec = 2
	}
	if cfg.EmbedRateBurst <= 0 {
		cfg.EmbedRateBurst = 1
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		genModel:     cfg.GenModel,
		embedModel:   cfg.EmbedModel,
		httpClient:   &http.Client{Timeout: cfg.RequestTimeout},
		executor:     resilience.NewExecutor(cfg.ResilienceConfig),
		embedLimiter: rate.NewLimiter(rate.Limit(cfg.EmbedRatePerSec), cfg.EmbedRateBurst),
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

// EmbedBatch embeds one micro-batch of chunk texts, order-preserving.
// Transient collaborator failures are retried inside the resilience
// executor; an exhausted batch surfaces as a single hard error.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.client.embed(ctx, texts, "RETRIEVAL_DOCUMENT")
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.client.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func (c *Client) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if err := c.embedLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embed rate limit wait: %w", err)
	}

	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Parts []part `json:"parts"`
	}
	type embedRequest struct {
		Model    string  `json:"model"`
		Content  content `json:"content"`
		TaskType string  `json:"taskType"`
	}

	model := "models/" + c.embedModel
	requests := make([]embedRequest, 0, len(texts))
	for _, text := range texts {
		requests = append(requests, embedRequest{
			Model:    model,
			Content:  content{Parts: []part{{Text: text}}},
			TaskType: taskType,
		})
	}

	var response struct {
		Embeddings []struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	}

	err := c.executor.Execute(ctx, "gemini.embed", func(callCtx context.Context) error {
		path := fmt.Sprintf("/v1beta/models/%s:batchEmbedContents", c.embedModel)
		return c.postJSON(callCtx, path, map[string]any{"requests": requests}, &response, "embed")
	}, classifyGeminiError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed", err)
	}

	if len(response.Embeddings) != len(texts) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed",
			fmt.Errorf("embeddings/texts mismatch: %d/%d", len(response.Embeddings), len(texts)),
		)
	}

	out := make([][]float32, 0, len(response.Embeddings))
	for _, embedding := range response.Embeddings {
		out = append(out, embedding.Values)
	}
	return out, nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

// Generate sends the assembled prompt plus prior turn history and returns
// the model's prose verbatim.
func (g *Generator) Generate(ctx context.Context, prompt string, history []domain.ChatTurn) (string, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role"`
		Parts []part `json:"parts"`
	}

	contents := make([]content, 0, len(history)+1)
	for _, turn := range history {
		role := "model"
		if turn.Sender == "user" {
			role = "user"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: turn.Text}}})
	}
	contents = append(contents, content{Role: "user", Parts: []part{{Text: prompt}}})

	var response struct {
		Candidates []struct {
			Content struct {
				Parts []part `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	err := g.client.executor.Execute(ctx, "gemini.generate", func(callCtx context.Context) error {
		path := fmt.Sprintf("/v1beta/models/%s:generateContent", g.client.genModel)
		return g.client.postJSON(callCtx, path, map[string]any{"contents": contents}, &response, "generate")
	}, classifyGeminiError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("generate", err)
	}

	if len(response.Candidates) == 0 {
		return "", fmt.Errorf("empty generation result")
	}
	var b strings.Builder
	for _, p := range response.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String()), nil
}
