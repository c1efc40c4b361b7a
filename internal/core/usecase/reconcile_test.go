package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

func TestReconcileRepairsDrift(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	docs := newDocRepoFake(nil,
		domain.Document{ID: 1, Path: "/nas/a.pdf", Status: domain.StatusIndexed},
		domain.Document{ID: 2, Path: "/nas/b.pdf", Status: domain.StatusIndexed},
		domain.Document{ID: 3, Path: "/nas/c.pdf", Status: domain.StatusProcessing, UpdatedAt: now.Add(-2 * time.Hour)},
		domain.Document{ID: 4, Path: "/nas/d.pdf", Status: domain.StatusProcessing, UpdatedAt: now.Add(-time.Minute)},
	)
	chunks := newChunkRepoFake(nil)
	chunks.rows[1] = []domain.Chunk{{DocumentID: 1, PointID: "p1"}}
	chunks.rows[2] = []domain.Chunk{{DocumentID: 2, PointID: "p2"}, {DocumentID: 2, PointID: "p3"}}
	vectors := newVectorStoreFake(nil)
	vectors.points["p1"] = domain.VectorPoint{ID: "p1", Payload: domain.PointPayload{DocumentID: 1}}
	vectors.points["orphan"] = domain.VectorPoint{ID: "orphan", Payload: domain.PointPayload{DocumentID: 1}}
	vectors.points["p2"] = domain.VectorPoint{ID: "p2", Payload: domain.PointPayload{DocumentID: 2}}

	r := NewReconciler(docs, chunks, vectors, time.Hour)
	r.now = func() time.Time { return now }

	report, err := r.Reconcile(context.Background(), 0)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.DocumentsChecked != 4 || report.OrphanPoints != 1 || report.MissingPoints != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.DocumentsFailed) != 2 || report.DocumentsFailed[0] != 2 || report.DocumentsFailed[1] != 3 {
		t.Fatalf("unexpected failed documents: %v", report.DocumentsFailed)
	}
	if _, ok := vectors.points["orphan"]; ok {
		t.Fatal("orphan point must be deleted")
	}
	if docs.get(4).Status != domain.StatusProcessing {
		t.Fatal("recent processing document must be left alone")
	}
	if docs.get(1).Status != domain.StatusIndexed {
		t.Fatal("document 1 must stay indexed")
	}
}

func TestReconcileSingleDocument(t *testing.T) {
	docs := newDocRepoFake(nil, domain.Document{ID: 5, Status: domain.StatusIndexed})
	vectors := newVectorStoreFake(nil)
	vectors.points["x"] = domain.VectorPoint{ID: "x", Payload: domain.PointPayload{DocumentID: 5}}

	report, err := NewReconciler(docs, newChunkRepoFake(nil), vectors, 0).Reconcile(context.Background(), 5)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.DocumentsChecked != 1 || report.OrphanPoints != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if _, err := NewReconciler(docs, newChunkRepoFake(nil), vectors, 0).Reconcile(context.Background(), 99); err == nil {
		t.Fatal("expected error for unknown document")
	}
}
