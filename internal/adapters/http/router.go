package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/tndao/prospectus-rag/internal/core/domain"
	"github.com/tndao/prospectus-rag/internal/core/ports"
	"github.com/tndao/prospectus-rag/internal/observability/metrics"
)

const maxUploadBytes = 64 << 20

type Router struct {
	uploader ports.DocumentUploader
	trigger  ports.IngestionTrigger
	search   ports.SearchService
	chat     ports.ChatService
	repo     ports.DocumentRepository
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	uploader ports.DocumentUploader,
	trigger ports.IngestionTrigger,
	search ports.SearchService,
	chat ports.ChatService,
	repo ports.DocumentRepository,
	m *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		uploader: uploader,
		trigger:  trigger,
		search:   search,
		chat:     chat,
		repo:     repo,
		metrics:  m,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("POST /v1/documents/{id}/ingest", rt.triggerIngestion)
	mux.HandleFunc("GET /v1/documents/{id}/ingestion", rt.ingestionStatus)
	mux.HandleFunc("POST /v1/documents/{id}/search", rt.searchDocument)
	mux.HandleFunc("POST /v1/documents/{id}/chat", rt.chatDocument)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	doc, err := rt.uploader.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.repo.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) triggerIngestion(w http.ResponseWriter, r *http.Request) {
	state, err := rt.trigger.Ingest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, state)
}

func (rt *Router) ingestionStatus(w http.ResponseWriter, r *http.Request) {
	state, err := rt.trigger.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (rt *Router) searchDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
		K     int    `json:"k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	start := time.Now()
	chunks, citations, err := rt.search.Search(r.Context(), r.PathValue("id"), req.Query, req.K)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRetrieval("api", "search", len(chunks), time.Since(start))
	}

	// Empty retrieval is an ordinary result, not an error.
	if chunks == nil {
		chunks = []domain.RetrievedChunk{}
	}
	if citations == nil {
		citations = []domain.Citation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chunks":    chunks,
		"citations": citations,
	})
}

func (rt *Router) chatDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string            `json:"question"`
		History  []domain.ChatTurn `json:"history"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	start := time.Now()
	answer, err := rt.chat.Chat(r.Context(), r.PathValue("id"), req.Question, req.History)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRetrieval("api", "chat", len(answer.Sources), time.Since(start))
	}
	writeJSON(w, http.StatusOK, answer)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
