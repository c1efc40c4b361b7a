package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/corpus-rag/internal/config"
	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/core/ports"
	"github.com/kirillkom/corpus-rag/internal/core/usecase"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/extractor"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/extractor/html"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/extractor/office"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/extractor/spreadsheet"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/inference"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/vector/pgvector"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/vector/qdrant"
)

const (
	plainTextMaxBytes = 64 << 20
	auditDrainTimeout = 5 * time.Second
)

// Options tune what New wires for a given binary.
type Options struct {
	// Service names the NATS client and the log/metric label.
	Service string
	// ConnectQueue opens the NATS connection. The API does not need it.
	ConnectQueue bool
	// Observer receives retry and circuit breaker events.
	Observer resilience.Observer

	OnRerankFallback func(reason string)
	OnAuditDrop      func()
	OnJobHandled     func(job domain.IndexJob, err error, elapsed time.Duration)
}

type App struct {
	Config config.Config

	DB      *sql.DB
	Queue   *nats.Queue
	Vectors ports.VectorStore

	Documents *postgres.DocumentRepository
	Chunks    *postgres.ChunkRepository

	Chunker    ports.Chunker
	Indexer    *usecase.IndexingCoordinator
	Detector   *usecase.ChangeDetector
	Sync       *usecase.SyncJob
	Reconciler *usecase.Reconciler
	Health     *usecase.HealthProber
	Answers    *usecase.AnswerOrchestrator
	Catalog    *usecase.Catalog

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := cfg.ACLPolicy()
	if err != nil {
		return nil, err
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN, postgres.PoolOptions{MaxOpenConns: cfg.PostgresMaxConns})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	closers := []func(){func() { _ = db.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if err := postgres.EnsureSchema(ctx, db); err != nil {
		closeAll()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	var executorOpts []resilience.Option
	if opts.Observer != nil {
		executorOpts = append(executorOpts, resilience.WithObserver(opts.Observer))
	}
	executor := resilience.NewExecutor(cfg.Resilience, executorOpts...)

	vectors, err := newVectorStore(ctx, cfg, db, executor)
	if err != nil {
		closeAll()
		return nil, err
	}

	var queue *nats.Queue
	if opts.ConnectQueue {
		queue, err = nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ClientName:         opts.Service,
			QueueGroup:         cfg.NATSQueueGroup,
			ResilienceExecutor: executor,
			OnHandled:          opts.OnJobHandled,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		closers = append(closers, queue.Close)
	}

	chunker, err := chunking.New(chunking.Options{
		Method:    cfg.ChunkMethod,
		ChunkSize: cfg.ChunkSize,
		Overlap:   cfg.ChunkOverlap,
	})
	if err != nil {
		closeAll()
		return nil, err
	}

	embedder := inference.NewEmbedder(inference.EmbedderOptions{
		BaseURL:   cfg.EmbeddingURL,
		Model:     cfg.EmbeddingModel,
		BatchSize: cfg.EmbeddingBatchSize,
		Timeout:   cfg.EmbeddingTimeout,
		Executor:  executor,
	})
	ocr := inference.NewOCR(inference.OCROptions{
		BaseURL:  cfg.OCRURL,
		Language: cfg.OCRLanguage,
		Timeout:  cfg.OCRTimeout,
		Executor: executor,
	})
	generator := inference.NewGenerator(inference.GeneratorOptions{
		BaseURL:  cfg.GenerationURL,
		APIKey:   cfg.GenerationAPIKey,
		Model:    cfg.GenerationModel,
		Timeout:  cfg.GenerationTimeout,
		Executor: executor,
	})
	var reranker ports.Reranker
	rerankClient := inference.NewReranker(inference.RerankerOptions{
		BaseURL:  cfg.RerankerURL,
		Timeout:  cfg.RerankerTimeout,
		Executor: executor,
	})
	if cfg.RerankerEnabled {
		reranker = rerankClient
	}

	documents := postgres.NewDocumentRepository(db)
	chunks := postgres.NewChunkRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	healthRepo := postgres.NewHealthRepository(db)

	corpus := localfs.New()
	detector := usecase.NewChangeDetector(corpus, policy)
	indexer := usecase.NewIndexingCoordinator(
		documents,
		chunks,
		postgres.NewAdvisoryLocker(db),
		NewExtractor(ocr, cfg.ExtractTimeout),
		chunker,
		embedder,
		vectors,
		indexingOptions(cfg),
	)

	retriever := usecase.NewRetriever(embedder, vectors, reranker, usecase.RetrieverOptions{
		CandidateMultiplier: cfg.RAGCandidateMultiplier,
		ScoreThreshold:      cfg.RAGScoreThreshold,
		RerankTimeout:       cfg.RerankerTimeout,
		OnRerankFallback:    opts.OnRerankFallback,
	})
	audit := usecase.NewAsyncAuditSink(auditRepo, cfg.AuditBufferSize, cfg.AuditWriteTimeout, opts.OnAuditDrop)
	audit.Start(context.WithoutCancel(ctx))
	closers = append(closers, func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), auditDrainTimeout)
		defer cancel()
		if err := audit.Close(drainCtx); err != nil {
			slog.Warn("audit_drain_incomplete", "error", err)
		}
	})
	answers := usecase.NewAnswerOrchestrator(retriever, generator, audit, auditRepo, usecase.AnswerOptions{
		DefaultTopK:        cfg.RAGTopK,
		MaxTopK:            cfg.RAGMaxTopK,
		DefaultTemperature: cfg.LLMTemperature,
		DefaultMaxTokens:   cfg.LLMMaxTokens,
		MaxTokensLimit:     cfg.LLMMaxTokensLimit,
		DefaultTopP:        cfg.LLMTopP,
		ModelName:          cfg.GenerationModel,
	})

	checkers := []ports.HealthChecker{postgres.NewChecker(db), vectors}
	if queue != nil {
		checkers = append(checkers, queue)
	}
	checkers = append(checkers, embedder, rerankClient, ocr, generator)
	health := usecase.NewHealthProber(healthRepo, cfg.HealthProbeTimeout, checkers...)

	app := &App{
		Config:     cfg,
		DB:         db,
		Queue:      queue,
		Vectors:    vectors,
		Documents:  documents,
		Chunks:     chunks,
		Chunker:    chunker,
		Indexer:    indexer,
		Detector:   detector,
		Reconciler: usecase.NewReconciler(documents, chunks, vectors, cfg.ReconcileStaleAfter),
		Health:     health,
		Answers:    answers,
		Catalog:    usecase.NewCatalog(documents),
		closeFn:    closeAll,
	}
	if queue != nil {
		app.Sync = usecase.NewSyncJob(documents, detector, queue, indexer, cfg.CorpusRoot)
	}

	slog.Info("bootstrap_ready",
		"service", opts.Service,
		"vector_backend", cfg.VectorBackend,
		"chunk_method", cfg.ChunkMethod,
		"hierarchy_policy", policy.Mode,
		"reranker_enabled", cfg.RerankerEnabled,
	)
	return app, nil
}

type healthCheckedVectorStore interface {
	ports.VectorStore
	ports.HealthChecker
}

func newVectorStore(ctx context.Context, cfg config.Config, db *sql.DB, executor *resilience.Executor) (healthCheckedVectorStore, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendPgvector:
		store := pgvector.New(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure pgvector schema: %w", err)
		}
		return store, nil
	default:
		return qdrant.New(cfg.QdrantURL, qdrant.Options{
			Collection: cfg.QdrantCollection,
			APIKey:     cfg.QdrantAPIKey,
			Executor:   executor,
		}), nil
	}
}

// NewExtractor registers every supported reader; raster images go to OCR.
func NewExtractor(ocr extractor.Reader, timeout time.Duration) *extractor.Dispatcher {
	return extractor.NewDispatcher(timeout).
		Register(pdf.NewReader(), ".pdf").
		Register(office.NewDocxReader(), ".docx").
		Register(office.NewPptxReader(), ".pptx").
		Register(spreadsheet.NewReader(), ".xlsx", ".xls").
		Register(html.NewReader(), ".html", ".htm").
		Register(plaintext.NewReader(plainTextMaxBytes), ".txt", ".md", ".csv").
		Register(ocr, ".tif", ".tiff", ".png", ".jpg", ".jpeg")
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func indexingOptions(cfg config.Config) usecase.IndexingOptions {
	return usecase.IndexingOptions{
		JobTimeout:   cfg.IndexJobTimeout,
		TokenCounter: chunking.EstimateTokens,
	}
}
