package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/core/ports"
)

const reconcilePageSize = 500

// Reconciler repairs drift between chunk rows and vector points left behind by
// interrupted index runs.
type Reconciler struct {
	docs    ports.DocumentRepository
	chunks  ports.ChunkRepository
	vectors ports.VectorStore
	// staleAfter marks documents stuck in processing longer than this as failed.
	staleAfter time.Duration
	now        func() time.Time
}

func NewReconciler(docs ports.DocumentRepository, chunks ports.ChunkRepository, vectors ports.VectorStore, staleAfter time.Duration) *Reconciler {
	return &Reconciler{
		docs:       docs,
		chunks:     chunks,
		vectors:    vectors,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Reconcile checks one document, or every document when documentID is zero.
func (r *Reconciler) Reconcile(ctx context.Context, documentID int64) (domain.ReconcileReport, error) {
	report := domain.ReconcileReport{}
	if documentID != 0 {
		doc, err := r.docs.GetByID(ctx, documentID)
		if err != nil {
			return report, fmt.Errorf("fetch document: %w", err)
		}
		r.reconcileDocument(ctx, doc, &report)
		return report, nil
	}

	for offset := 0; ; offset += reconcilePageSize {
		page, err := r.docs.List(ctx, domain.DocumentFilter{Limit: reconcilePageSize, Offset: offset})
		if err != nil {
			return report, fmt.Errorf("list documents: %w", err)
		}
		for i := range page {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			r.reconcileDocument(ctx, &page[i], &report)
		}
		if len(page) < reconcilePageSize {
			break
		}
	}

	slog.Info("reconcile_completed",
		"documents_checked", report.DocumentsChecked,
		"orphan_points", report.OrphanPoints,
		"missing_points", report.MissingPoints,
		"documents_failed", len(report.DocumentsFailed),
	)
	return report, nil
}

func (r *Reconciler) reconcileDocument(ctx context.Context, doc *domain.Document, report *domain.ReconcileReport) {
	report.DocumentsChecked++

	if doc.Status == domain.StatusProcessing {
		if r.staleAfter > 0 && r.now().Sub(doc.UpdatedAt) > r.staleAfter {
			r.markFailed(ctx, doc.ID, "indexing interrupted", report)
		}
		return
	}

	rows, err := r.chunks.ListByDocument(ctx, doc.ID)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("document %d: list chunks: %v", doc.ID, err))
		return
	}
	stored, err := r.vectors.PointIDsByDocument(ctx, doc.ID)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("document %d: list points: %v", doc.ID, err))
		return
	}

	expected := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		expected[row.PointID] = struct{}{}
	}
	present := make(map[string]struct{}, len(stored))
	orphans := make([]string, 0)
	for _, id := range stored {
		present[id] = struct{}{}
		if _, ok := expected[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	missing := 0
	for id := range expected {
		if _, ok := present[id]; !ok {
			missing++
		}
	}

	if len(orphans) > 0 {
		if err := r.vectors.Delete(ctx, orphans); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("document %d: delete orphans: %v", doc.ID, err))
		} else {
			report.OrphanPoints += len(orphans)
			slog.Warn("reconcile_orphans_deleted", "document_id", doc.ID, "points", len(orphans))
		}
	}
	if missing > 0 {
		report.MissingPoints += missing
		if doc.Status == domain.StatusIndexed {
			r.markFailed(ctx, doc.ID, fmt.Sprintf("%d vector points missing", missing), report)
		}
	}
}

func (r *Reconciler) markFailed(ctx context.Context, documentID int64, reason string, report *domain.ReconcileReport) {
	if err := r.docs.UpdateStatus(ctx, documentID, domain.StatusFailed, reason); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("document %d: mark failed: %v", documentID, err))
		return
	}
	report.DocumentsFailed = append(report.DocumentsFailed, documentID)
	slog.Warn("reconcile_document_failed", "document_id", documentID, "reason", reason)
}
