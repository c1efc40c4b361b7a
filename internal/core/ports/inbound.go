package ports

import (
	"context"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

// QueryService is the inbound contract for grounded question answering.
type QueryService interface {
	Ask(ctx context.Context, principal domain.Principal, req domain.AskRequest, client domain.ClientInfo) (*domain.Answer, error)
	Search(ctx context.Context, principal domain.Principal, query string, topK int, client domain.ClientInfo) ([]domain.RetrievedChunk, error)
}

// HistoryReader exposes a caller's own audit trail.
type HistoryReader interface {
	History(ctx context.Context, principal domain.Principal, limit int) ([]domain.AuditRecord, error)
}

// DocumentCatalog is the read model for document state, scoped to what the
// principal may retrieve.
type DocumentCatalog interface {
	ListDocuments(ctx context.Context, principal domain.Principal, filter domain.DocumentFilter) ([]domain.Document, error)
}

// DocumentRemover drops a document that left the corpus from both stores.
type DocumentRemover interface {
	Remove(ctx context.Context, path string) error
}

// DocumentIndexer is the inbound contract for asynchronous indexing.
type DocumentIndexer interface {
	Index(ctx context.Context, job domain.IndexJob) error
}

// ReadinessChecker probes the stores the API depends on.
type ReadinessChecker interface {
	Ready(ctx context.Context) []domain.ServiceHealth
}
