package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

type queueFake struct {
	published []domain.IndexJob
	failPath  string
}

func (f *queueFake) PublishIndexJob(_ context.Context, job domain.IndexJob) error {
	if job.Path == f.failPath {
		return errors.New("nats: connection closed")
	}
	f.published = append(f.published, job)
	return nil
}

func (f *queueFake) SubscribeIndexJobs(context.Context, func(context.Context, domain.IndexJob) error) error {
	return nil
}

func TestSyncRunPublishesChangedFiles(t *testing.T) {
	corpus := &corpusFake{root: "/nas", files: map[string]string{
		"1/1/a.pdf": "h-a",
		"1/1/b.pdf": "h-b",
		"1/1/c.pdf": "h-c",
	}}
	docs := newDocRepoFake(nil, domain.Document{ID: 1, Path: "/nas/1/1/a.pdf", ContentHash: "h-a", Status: domain.StatusIndexed})
	queue := &queueFake{failPath: "/nas/1/1/c.pdf"}
	job := NewSyncJob(docs, NewChangeDetector(corpus, domain.HierarchyPolicy{}), queue, nil, "/nas")

	report, err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected publish error to be reported")
	}
	if report.Scanned != 3 || report.Unchanged != 1 || report.Added != 2 || report.Queued != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(queue.published) != 1 || queue.published[0].Path != "/nas/1/1/b.pdf" || queue.published[0].DepartmentID != 1 {
		t.Fatalf("unexpected published jobs: %+v", queue.published)
	}
}

func TestSyncRunFailsWithoutKnownHashes(t *testing.T) {
	docs := newDocRepoFake(nil)
	docs.getErr = errors.New("db down")
	job := NewSyncJob(docs, NewChangeDetector(&corpusFake{}, domain.HierarchyPolicy{}), &queueFake{}, nil, "/nas")
	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSyncReindexPublishesManualJob(t *testing.T) {
	corpus := &corpusFake{root: "/nas", files: map[string]string{"3/4/x.docx": "h-x"}}
	queue := &queueFake{}
	job := NewSyncJob(newDocRepoFake(nil), NewChangeDetector(corpus, domain.HierarchyPolicy{}), queue, nil, "/nas")

	got, err := job.Reindex(context.Background(), "3/4/x.docx")
	if err != nil {
		t.Fatalf("Reindex() error = %v", err)
	}
	if got.Change != domain.ChangeManual || got.ContentHash != "h-x" || got.DepartmentID != 3 || got.RoleID != 4 {
		t.Fatalf("unexpected job: %+v", got)
	}
	if len(queue.published) != 1 {
		t.Fatalf("expected one published job, got %d", len(queue.published))
	}
}

type removerFake struct {
	removed []string
}

func (f *removerFake) Remove(_ context.Context, path string) error {
	f.removed = append(f.removed, path)
	return nil
}

func TestSyncRunRemovesDocumentsMissingFromCorpus(t *testing.T) {
	corpus := &corpusFake{root: "/nas", files: map[string]string{"1/1/a.pdf": "h-a"}}
	docs := newDocRepoFake(nil,
		domain.Document{ID: 1, Path: "/nas/1/1/a.pdf", ContentHash: "h-a", Status: domain.StatusIndexed},
		domain.Document{ID: 2, Path: "/nas/9/9/moved.pdf", ContentHash: "h-m", Status: domain.StatusIndexed},
	)
	remover := &removerFake{}
	job := NewSyncJob(docs, NewChangeDetector(corpus, domain.HierarchyPolicy{}), &queueFake{}, remover, "/nas")

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Removed != 1 || len(remover.removed) != 1 || remover.removed[0] != "/nas/9/9/moved.pdf" {
		t.Fatalf("unexpected removals: report=%+v removed=%v", report, remover.removed)
	}
}

func TestSyncRunKeepsDocumentsWhenCorpusLooksUnmounted(t *testing.T) {
	docs := newDocRepoFake(nil, domain.Document{ID: 1, Path: "/nas/1/1/a.pdf", ContentHash: "h-a", Status: domain.StatusIndexed})
	remover := &removerFake{}
	job := NewSyncJob(docs, NewChangeDetector(&corpusFake{root: "/nas"}, domain.HierarchyPolicy{}), &queueFake{}, remover, "/nas")

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Removed != 0 || len(remover.removed) != 0 {
		t.Fatalf("empty walk must not remove documents, got %v", remover.removed)
	}
}
