package plaintext

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

// Reader returns UTF-8 text files as they are.
type Reader struct {
	maxBytes int64
}

func NewReader(maxBytes int64) *Reader {
	return &Reader{maxBytes: maxBytes}
}

func (r *Reader) Read(_ context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat source document: %w", err)
	}
	if r.maxBytes > 0 && info.Size() > r.maxBytes {
		return "", domain.WrapError(domain.ErrInvalidInput, "read plaintext", fmt.Errorf("file is %d bytes, limit %d", info.Size(), r.maxBytes))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\ufeff"))
	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrUnsupportedType, "read plaintext", fmt.Errorf("%s is not valid UTF-8", path))
	}

	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	return strings.TrimSpace(text), nil
}
