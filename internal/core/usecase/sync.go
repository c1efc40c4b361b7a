package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/core/ports"
)

// SyncJob is the periodic scan: load known hashes, detect changes, publish
// one index job per changed file and drop documents whose file is gone.
type SyncJob struct {
	docs     ports.DocumentRepository
	detector *ChangeDetector
	queue    ports.JobQueue
	remover  ports.DocumentRemover
	root     string
}

// NewSyncJob builds the sync job. A nil remover leaves removed files indexed.
func NewSyncJob(docs ports.DocumentRepository, detector *ChangeDetector, queue ports.JobQueue, remover ports.DocumentRemover, root string) *SyncJob {
	return &SyncJob{docs: docs, detector: detector, queue: queue, remover: remover, root: root}
}

func (j *SyncJob) Run(ctx context.Context) (domain.ScanReport, error) {
	known, err := j.docs.KnownHashes(ctx)
	if err != nil {
		return domain.ScanReport{}, fmt.Errorf("load known hashes: %w", err)
	}

	report, err := j.detector.Detect(ctx, j.root, known)
	if err != nil {
		return report, err
	}

	var syncErrs []error
	for _, job := range report.Jobs {
		if err := j.queue.PublishIndexJob(ctx, job); err != nil {
			report.Failed++
			syncErrs = append(syncErrs, fmt.Errorf("publish %s: %w", job.Path, err))
			slog.Error("sync_publish_failed", "path", job.Path, "error", err)
			continue
		}
		report.Queued++
	}

	if j.remover != nil {
		for _, path := range report.Missing {
			if err := j.remover.Remove(ctx, path); err != nil {
				syncErrs = append(syncErrs, fmt.Errorf("remove %s: %w", path, err))
				slog.Error("sync_remove_failed", "path", path, "error", err)
				continue
			}
			report.Removed++
		}
	}

	slog.Info("sync_completed",
		"root", j.root,
		"scanned", report.Scanned,
		"added", report.Added,
		"modified", report.Modified,
		"unchanged", report.Unchanged,
		"duplicate", report.Duplicate,
		"rejected", report.Rejected,
		"failed", report.Failed,
		"queued", report.Queued,
		"removed", report.Removed,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, errors.Join(syncErrs...)
}

// Reindex publishes a manual job for one file regardless of its stored hash.
func (j *SyncJob) Reindex(ctx context.Context, path string) (domain.IndexJob, error) {
	job, err := j.detector.Describe(ctx, j.root, path)
	if err != nil {
		return domain.IndexJob{}, err
	}
	if err := j.queue.PublishIndexJob(ctx, job); err != nil {
		return job, fmt.Errorf("publish %s: %w", path, err)
	}
	return job, nil
}
