package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/resilience"
)

type EmbedderOptions struct {
	BaseURL   string
	Model     string
	BatchSize int
	Timeout   time.Duration
	Executor  *resilience.Executor
}

// Embedder calls POST /embed with normalisation enabled.
type Embedder struct {
	transport
	model     string
	batchSize int
}

func NewEmbedder(opts EmbedderOptions) *Embedder {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Embedder{
		transport: newTransport("embedding", opts.BaseURL, opts.Timeout, opts.Executor),
		model:     opts.Model,
		batchSize: batchSize,
	}
}

type embedRequest struct {
	Texts     []string `json:"texts"`
	Normalize bool     `json:"normalize"`
	BatchSize int      `json:"batch_size"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Model      string      `json:"model"`
	Dimension  int         `json:"dimension"`
}

// Embed sends all texts in one request. The caller verifies that the number
// of vectors matches the number of texts.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := embedRequest{Texts: texts, Normalize: true, BatchSize: e.batchSize}
	var response embedResponse
	err := e.run(ctx, "embed", func(callCtx context.Context) error {
		return e.postJSON(callCtx, "/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, err
	}
	if response.Dimension > 0 {
		for i, vector := range response.Embeddings {
			if len(vector) != response.Dimension {
				return nil, domain.WrapError(domain.ErrContractViolation, "embed", fmt.Errorf("vector %d has %d dimensions, want %d", i, len(vector), response.Dimension))
			}
		}
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, domain.WrapError(domain.ErrContractViolation, "embed query", fmt.Errorf("got %d vectors for one query", len(vectors)))
	}
	return vectors[0], nil
}

func (e *Embedder) ModelName() string {
	return e.model
}
