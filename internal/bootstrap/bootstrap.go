package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/tndao/prospectus-rag/internal/config"
	"github.com/tndao/prospectus-rag/internal/core/ports"
	"github.com/tndao/prospectus-rag/internal/core/usecase"
	"github.com/tndao/prospectus-rag/internal/infrastructure/chunking"
	"github.com/tndao/prospectus-rag/internal/infrastructure/extractor/pdftext"
	"github.com/tndao/prospectus-rag/internal/infrastructure/llm/gemini"
	"github.com/tndao/prospectus-rag/internal/infrastructure/normalize"
	"github.com/tndao/prospectus-rag/internal/infrastructure/queue/nats"
	"github.com/tndao/prospectus-rag/internal/infrastructure/repository/postgres"
	"github.com/tndao/prospectus-rag/internal/infrastructure/rerank/crossencoder"
	"github.com/tndao/prospectus-rag/internal/infrastructure/resilience"
	"github.com/tndao/prospectus-rag/internal/infrastructure/storage/localfs"
	"github.com/tndao/prospectus-rag/internal/infrastructure/store"
	"github.com/tndao/prospectus-rag/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Queue ports.MessageQueue
	Repo  ports.DocumentRepository

	UploadUC  *usecase.UploadDocumentUseCase
	IngestUC  *usecase.IngestDocumentUseCase
	ProcessUC *usecase.ProcessDocumentUseCase
	SearchUC  *usecase.SearchUseCase
	ChatUC    *usecase.ChatUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	chunkRepo := postgres.NewChunkRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	geminiClient := gemini.New(gemini.Config{
		BaseURL:          cfg.GeminiURL,
		APIKey:           cfg.GeminiAPIKey,
		GenModel:         cfg.GeminiGenModel,
		EmbedModel:       cfg.GeminiEmbedModel,
		EmbedRatePerSec:  cfg.EmbedRatePerSec,
		EmbedRateBurst:   cfg.EmbedRateBurst,
		ResilienceConfig: resilience.DefaultConfig(),
	})
	embedder := gemini.NewEmbedder(geminiClient)
	generator := gemini.NewGenerator(geminiClient)

	vectorDB := qdrant.New(qdrant.Config{
		BaseURL:         cfg.QdrantURL,
		Collection:      cfg.QdrantCollection,
		VectorSize:      cfg.EmbedDim,
		HNSWM:           cfg.HNSWM,
		HNSWEfConstruct: cfg.HNSWEfConstruct,
		ScoreThreshold:  cfg.VectorScoreMin,
	})
	chunkStore := store.New(chunkRepo, vectorDB)

	patterns, err := normalize.LoadPatterns(cfg.BoilerplatePatternsPath)
	if err != nil {
		return nil, fmt.Errorf("load boilerplate patterns: %w", err)
	}
	normalizer := normalize.New(patterns)
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	extractor := pdftext.NewExtractor(storage)

	var reranker ports.Reranker
	if cfg.RerankEnabled {
		reranker = crossencoder.New(cfg.RerankURL, 10*time.Second)
	}

	uploadUC := usecase.NewUploadDocumentUseCase(repo, storage)
	ingestUC := usecase.NewIngestDocumentUseCase(repo, queue)
	processUC := usecase.NewProcessDocumentUseCase(repo, extractor, normalizer, chunker, embedder, chunkStore, usecase.ProcessConfig{
		EmbedBatchSize: cfg.EmbedBatchSize,
		EmbedWorkers:   cfg.EmbedWorkers,
	})
	searchUC := usecase.NewSearchUseCase(repo, embedder, normalizer, chunkStore, reranker, usecase.SearchConfig{
		VectorCandidates:  cfg.VectorCandidates,
		LexicalCandidates: cfg.LexicalCandidates,
		RRFK:              cfg.FusionRRFK,
		RerankEnabled:     cfg.RerankEnabled,
		RerankCandidates:  cfg.RerankCandidates,
		TopK:              cfg.RAGTopK,
		QueryEmbedTimeout: time.Duration(cfg.QueryEmbedTimeoutSeconds) * time.Second,
	})
	chatUC := usecase.NewChatUseCase(repo, searchUC, generator, cfg.RAGTopK)

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,

		UploadUC:  uploadUC,
		IngestUC:  ingestUC,
		ProcessUC: processUC,
		SearchUC:  searchUC,
		ChatUC:    chatUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
