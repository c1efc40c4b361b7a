package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

func TestJobCodecKeepsFields(t *testing.T) {
	job := domain.IndexJob{
		Path: "/nas/5/2/a.pdf", ContentHash: "h1", FileType: ".pdf", Size: 42,
		DepartmentID: 5, RoleID: 2, Change: domain.ChangeModified,
		DetectedAt: time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC),
	}
	data, err := encodeJob(job)
	if err != nil {
		t.Fatalf("encodeJob() error = %v", err)
	}
	got, err := decodeJob(data)
	if err != nil {
		t.Fatalf("decodeJob() error = %v", err)
	}
	if !got.DetectedAt.Equal(job.DetectedAt) {
		t.Fatalf("detected_at %v, want %v", got.DetectedAt, job.DetectedAt)
	}
	got.DetectedAt, job.DetectedAt = time.Time{}, time.Time{}
	if got != job {
		t.Fatalf("decoded %+v, want %+v", got, job)
	}
}

func TestDecodeJobRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"doc-1", `{"path":"/nas/a.pdf"}`} {
		if _, err := decodeJob([]byte(raw)); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("%q: expected ErrInvalidInput, got %v", raw, err)
		}
	}
}

func TestDispatchReportsOutcome(t *testing.T) {
	var handled []error
	q := &Queue{onHandled: func(_ domain.IndexJob, err error, _ time.Duration) { handled = append(handled, err) }}
	data, _ := encodeJob(domain.IndexJob{Path: "/nas/a.pdf", ContentHash: "h"})

	boom := errors.New("boom")
	q.dispatch(context.Background(), data, func(context.Context, domain.IndexJob) error { return boom })
	q.dispatch(context.Background(), data, func(context.Context, domain.IndexJob) error { return nil })
	q.dispatch(context.Background(), []byte("nope"), func(context.Context, domain.IndexJob) error {
		t.Fatal("handler must not run for undecodable messages")
		return nil
	})

	if len(handled) != 2 || !errors.Is(handled[0], boom) || handled[1] != nil {
		t.Fatalf("unexpected outcomes %v", handled)
	}
}

func TestClassifyNATSError(t *testing.T) {
	if c := classifyNATSError(nats.ErrConnectionClosed); !c.Retryable {
		t.Fatal("closed connection should be retryable")
	}
	if c := classifyNATSError(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatal("cancellation must not be retried or recorded")
	}
	if c := classifyNATSError(nats.ErrBadSubject); c.Retryable {
		t.Fatal("bad subject must not be retried")
	}
	if c := classifyNATSError(fmt.Errorf("nats publish: %w", nats.ErrMaxPayload)); c.Retryable || c.RecordFailure {
		t.Fatal("oversized payload must not be retried or trip the breaker")
	}
}

func TestPublishErrorKinds(t *testing.T) {
	if err := publishError(fmt.Errorf("nats publish: %w", nats.ErrTimeout)); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if err := publishError(nats.ErrMaxPayload); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := publishError(nats.ErrBadSubject); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("bad subject must not be temporary, got %v", err)
	}
	if publishError(nil) != nil {
		t.Fatal("nil must stay nil")
	}
}
