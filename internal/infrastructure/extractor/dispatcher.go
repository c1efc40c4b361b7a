package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

// Reader turns one file into plain text.
type Reader interface {
	Read(ctx context.Context, path string) (string, error)
}

type ReaderFunc func(ctx context.Context, path string) (string, error)

func (f ReaderFunc) Read(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// Dispatcher routes extraction by lowercased file extension. Types without a
// registered reader produce empty text and a warning.
type Dispatcher struct {
	readers map[string]Reader
	timeout time.Duration
}

func NewDispatcher(timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		readers: make(map[string]Reader),
		timeout: timeout,
	}
}

// Register binds reader to every extension listed. Extensions include the dot.
func (d *Dispatcher) Register(reader Reader, extensions ...string) *Dispatcher {
	for _, ext := range extensions {
		d.readers[normalizeExt(ext)] = reader
	}
	return d
}

func (d *Dispatcher) Supports(fileType string) bool {
	_, ok := d.readers[normalizeExt(fileType)]
	return ok
}

func (d *Dispatcher) Extract(ctx context.Context, path, fileType string) (string, error) {
	reader, ok := d.readers[normalizeExt(fileType)]
	if !ok {
		slog.Warn("extract_unsupported_type", "path", path, "file_type", fileType)
		return "", nil
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	type result struct {
		text string
		err  error
	}
	// Some parsers ignore ctx, so the deadline is enforced here.
	done := make(chan result, 1)
	go func() {
		text, err := reader.Read(ctx, path)
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", domain.WrapError(domain.ErrTemporary, "extract", fmt.Errorf("extract %s: %w", path, ctx.Err()))
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("extract %s: %w", path, res.err)
		}
		return strings.TrimSpace(res.text), nil
	}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
