package ports

import (
	"context"
	"time"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

// DocumentRepository persists document rows. Lookups return
// domain.ErrDocumentNotFound when nothing matches.
type DocumentRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Document, error)
	GetByHash(ctx context.Context, contentHash string) (*domain.Document, error)
	GetByPath(ctx context.Context, path string) (*domain.Document, error)
	Create(ctx context.Context, doc *domain.Document) error
	// BeginProcessing stores the document's new hash, size, ACL and version and
	// moves it to processing.
	BeginProcessing(ctx context.Context, doc *domain.Document) error
	UpdateStatus(ctx context.Context, id int64, status domain.DocumentStatus, errMessage string) error
	MarkIndexed(ctx context.Context, id int64, chunkCount int, indexedAt time.Time) error
	// KnownHashes maps every stored path to its content hash.
	KnownHashes(ctx context.Context) (map[string]string, error)
	List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error)
	Delete(ctx context.Context, id int64) error
}

// ChunkRepository persists the relational half of the dual write.
type ChunkRepository interface {
	ListByDocument(ctx context.Context, documentID int64) ([]domain.Chunk, error)
	DeleteByDocument(ctx context.Context, documentID int64) error
	InsertBatch(ctx context.Context, chunks []domain.Chunk) error
}

// DocumentLocker serialises indexing of the same path across workers.
type DocumentLocker interface {
	TryLock(ctx context.Context, key string) (release func(), acquired bool, err error)
}

type AuditRepository interface {
	Insert(ctx context.Context, record domain.AuditRecord) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]domain.AuditRecord, error)
}

// AuditSink accepts audit records without blocking the caller.
type AuditSink interface {
	Record(record domain.AuditRecord)
}

type HealthRepository interface {
	Record(ctx context.Context, results []domain.ServiceHealth) error
	Latest(ctx context.Context) ([]domain.ServiceHealth, error)
}

// CorpusWalker enumerates and hashes files under a corpus root.
type CorpusWalker interface {
	Walk(ctx context.Context, root string, fn func(domain.CorpusFile) error) error
	Hash(ctx context.Context, path string) (string, error)
}

// TextExtractor turns a stored file into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, path, fileType string) (string, error)
}

// Chunker splits text into retrieval units.
type Chunker interface {
	Split(text string) []string
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]domain.RerankResult, error)
}

type AnswerGenerator interface {
	Generate(ctx context.Context, prompt string, params domain.GenerationParams) (domain.Generation, error)
}

// VectorStore holds the point half of the dual write.
type VectorStore interface {
	Upsert(ctx context.Context, points []domain.VectorPoint) error
	Search(ctx context.Context, vector []float32, limit int, scoreThreshold float64, filter domain.AccessFilter) ([]domain.RetrievedChunk, error)
	Delete(ctx context.Context, pointIDs []string) error
	PointIDsByDocument(ctx context.Context, documentID int64) ([]string, error)
}

// JobQueue carries index jobs from the sync job to workers.
type JobQueue interface {
	PublishIndexJob(ctx context.Context, job domain.IndexJob) error
	SubscribeIndexJobs(ctx context.Context, handler func(context.Context, domain.IndexJob) error) error
}

type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}
