package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/core/ports"
)

// AsyncAuditSink buffers audit records and writes them from one background
// goroutine. Record never blocks: when the buffer is full the record is
// dropped and logged.
type AsyncAuditSink struct {
	repo         ports.AuditRepository
	records      chan domain.AuditRecord
	writeTimeout time.Duration
	onDrop       func()

	mu      sync.RWMutex
	started bool
	closed  bool
	done    chan struct{}
}

func NewAsyncAuditSink(repo ports.AuditRepository, bufferSize int, writeTimeout time.Duration, onDrop func()) *AsyncAuditSink {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &AsyncAuditSink{
		repo:         repo,
		records:      make(chan domain.AuditRecord, bufferSize),
		writeTimeout: writeTimeout,
		onDrop:       onDrop,
		done:         make(chan struct{}),
	}
}

// Start runs the writer until Close drains the buffer. Only the first call
// starts a writer.
func (s *AsyncAuditSink) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	go func() {
		defer close(s.done)
		for record := range s.records {
			writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
			if err := s.repo.Insert(writeCtx, record); err != nil {
				slog.Error("audit_write_failed", "user_id", record.UserID, "action", record.Action, "error", err)
			}
			cancel()
		}
	}()
}

func (s *AsyncAuditSink) Record(record domain.AuditRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop(record, "closed")
		return
	}
	select {
	case s.records <- record:
	default:
		s.drop(record, "buffer_full")
	}
}

func (s *AsyncAuditSink) drop(record domain.AuditRecord, reason string) {
	slog.Error("audit_record_dropped", "reason", reason, "user_id", record.UserID, "action", record.Action)
	if s.onDrop != nil {
		s.onDrop()
	}
}

// Close stops accepting records and waits until buffered ones are written or
// ctx ends. A sink that was never started drops its buffer and returns at once.
func (s *AsyncAuditSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.records)
	}
	started := s.started
	s.mu.Unlock()

	if !started {
		for record := range s.records {
			s.drop(record, "not_started")
		}
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
