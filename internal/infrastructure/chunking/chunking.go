package chunking

import (
	"fmt"
	"strings"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/core/ports"
)

const (
	MethodRecursive = "recursive"
	MethodToken     = "token"
	MethodHybrid    = "hybrid"

	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

type Options struct {
	Method    string
	ChunkSize int
	Overlap   int
}

// New builds the chunker selected by opts.Method. Sizes outside the valid
// range are configuration errors rather than silently corrected.
func New(opts Options) (ports.Chunker, error) {
	if err := validate(opts.ChunkSize, opts.Overlap); err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(opts.Method)) {
	case MethodRecursive:
		return NewRecursiveSplitter(opts.ChunkSize, opts.Overlap, nil)
	case MethodToken:
		return NewTokenSplitter(opts.ChunkSize, opts.Overlap)
	case MethodHybrid, "":
		return NewHybridSplitter(opts.ChunkSize, opts.Overlap)
	default:
		return nil, domain.WrapError(domain.ErrInvalidConfig, "chunking", fmt.Errorf("unknown chunk method %q", opts.Method))
	}
}

func validate(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return domain.WrapError(domain.ErrInvalidConfig, "chunking", fmt.Errorf("chunk size must be positive, got %d", chunkSize))
	}
	if overlap < 0 {
		return domain.WrapError(domain.ErrInvalidConfig, "chunking", fmt.Errorf("chunk overlap must not be negative, got %d", overlap))
	}
	if overlap >= chunkSize {
		return domain.WrapError(domain.ErrInvalidConfig, "chunking", fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, chunkSize))
	}
	return nil
}
