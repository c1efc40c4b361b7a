package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

type syncRunner interface {
	Run(ctx context.Context) (domain.ScanReport, error)
}

type healthProber interface {
	Probe(ctx context.Context) ([]domain.ServiceHealth, error)
}

type recorder interface {
	RecordSync(report domain.ScanReport, err error)
	RecordHealth(results []domain.ServiceHealth)
}

type jobs struct {
	ctx      context.Context
	sync     syncRunner
	health   healthProber
	recorder recorder
}

func (j *jobs) runSync() {
	report, err := j.sync.Run(j.ctx)
	j.recorder.RecordSync(report, err)
	if err != nil {
		slog.Error("scheduled_sync_failed", "error", err)
		return
	}
	slog.Info("scheduled_sync_completed",
		"files_scanned", report.Scanned,
		"files_added", report.Added,
		"files_updated", report.Modified,
		"files_queued", report.Queued,
		"files_failed", report.Failed,
		"duration_ms", report.Duration.Milliseconds(),
	)
}

func (j *jobs) runHealth() {
	results, err := j.health.Probe(j.ctx)
	j.recorder.RecordHealth(results)
	if err != nil {
		slog.Error("scheduled_health_failed", "error", err)
	}
}

// newCron builds a UTC scheduler where a slow sync never overlaps itself.
func newCron(j *jobs, syncSchedule, healthSchedule string) (*cron.Cron, error) {
	logger := slogCronLogger{}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(syncSchedule, j.runSync); err != nil {
		return nil, fmt.Errorf("%w: sync schedule %q: %v", domain.ErrInvalidConfig, syncSchedule, err)
	}
	if _, err := c.AddFunc(healthSchedule, j.runHealth); err != nil {
		return nil, fmt.Errorf("%w: health schedule %q: %v", domain.ErrInvalidConfig, healthSchedule, err)
	}
	return c, nil
}

type slogCronLogger struct{}

func (slogCronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron_"+msg, keysAndValues...)
}

func (slogCronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron_"+msg, append(keysAndValues, "error", err)...)
}
