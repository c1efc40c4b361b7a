package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/core/ports"
)

// HealthProber checks collaborators concurrently and optionally records the
// results.
type HealthProber struct {
	checkers []ports.HealthChecker
	repo     ports.HealthRepository
	timeout  time.Duration
	now      func() time.Time
}

func NewHealthProber(repo ports.HealthRepository, timeout time.Duration, checkers ...ports.HealthChecker) *HealthProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthProber{
		checkers: checkers,
		repo:     repo,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Ready runs every check once without recording anything.
func (p *HealthProber) Ready(ctx context.Context) []domain.ServiceHealth {
	results := make([]domain.ServiceHealth, len(p.checkers))
	var g errgroup.Group
	for i, checker := range p.checkers {
		g.Go(func() error {
			results[i] = p.check(ctx, checker)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Probe runs every check and stores the results.
func (p *HealthProber) Probe(ctx context.Context) ([]domain.ServiceHealth, error) {
	results := p.Ready(ctx)
	for _, r := range results {
		if r.Status != domain.HealthUp {
			slog.Warn("health_check_failed", "service_name", r.Service, "error", r.Error)
		}
	}
	if p.repo == nil {
		return results, nil
	}
	if err := p.repo.Record(ctx, results); err != nil {
		return results, fmt.Errorf("record health: %w", err)
	}
	return results, nil
}

func (p *HealthProber) check(ctx context.Context, checker ports.HealthChecker) domain.ServiceHealth {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	started := p.now()
	err := checker.Check(checkCtx)
	elapsed := p.now().Sub(started)

	result := domain.ServiceHealth{
		Service:   checker.Name(),
		Status:    domain.HealthUp,
		Latency:   elapsed,
		LatencyMS: float64(elapsed.Microseconds()) / 1000.0,
		CheckedAt: started.UTC(),
	}
	if err != nil {
		result.Status = domain.HealthDown
		result.Error = err.Error()
	}
	return result
}

// Healthy reports whether every result is up.
func Healthy(results []domain.ServiceHealth) bool {
	for _, r := range results {
		if r.Status != domain.HealthUp {
			return false
		}
	}
	return true
}
