package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

type checkerFake struct {
	name  string
	err   error
	block bool
}

func (f checkerFake) Name() string { return f.name }

func (f checkerFake) Check(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

type healthRepoFake struct {
	recorded [][]domain.ServiceHealth
}

func (f *healthRepoFake) Record(_ context.Context, results []domain.ServiceHealth) error {
	f.recorded = append(f.recorded, results)
	return nil
}

func (f *healthRepoFake) Latest(context.Context) ([]domain.ServiceHealth, error) {
	if len(f.recorded) == 0 {
		return nil, nil
	}
	return f.recorded[len(f.recorded)-1], nil
}

func TestHealthProbeRecordsEveryService(t *testing.T) {
	repo := &healthRepoFake{}
	prober := NewHealthProber(repo, 20*time.Millisecond,
		checkerFake{name: "qdrant"},
		checkerFake{name: "embedding", err: errors.New("503")},
		checkerFake{name: "llm", block: true},
	)

	results, err := prober.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if len(results) != 3 || len(repo.recorded) != 1 {
		t.Fatalf("unexpected results %+v", results)
	}
	want := map[string]domain.HealthStatus{"qdrant": domain.HealthUp, "embedding": domain.HealthDown, "llm": domain.HealthDown}
	for _, r := range results {
		if r.Status != want[r.Service] {
			t.Fatalf("%s: status %s, want %s", r.Service, r.Status, want[r.Service])
		}
		if r.CheckedAt.IsZero() {
			t.Fatalf("%s: missing check time", r.Service)
		}
	}
	if results[1].Error != "503" {
		t.Fatalf("expected error message, got %q", results[1].Error)
	}
	if Healthy(results) {
		t.Fatal("expected unhealthy aggregate")
	}
}

func TestHealthReadyDoesNotRecord(t *testing.T) {
	repo := &healthRepoFake{}
	results := NewHealthProber(repo, time.Second, checkerFake{name: "postgres"}).Ready(context.Background())
	if !Healthy(results) || len(repo.recorded) != 0 {
		t.Fatalf("unexpected ready results %+v", results)
	}
}
