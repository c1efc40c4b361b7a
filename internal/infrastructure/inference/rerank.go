package inference

import (
	"context"
	"time"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/resilience"
)

type RerankerOptions struct {
	BaseURL  string
	Timeout  time.Duration
	Executor *resilience.Executor
}

// Reranker calls the cross-encoder POST /rerank endpoint.
type Reranker struct {
	transport
}

func NewReranker(opts RerankerOptions) *Reranker {
	return &Reranker{transport: newTransport("reranker", opts.BaseURL, opts.Timeout, opts.Executor)}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopK      *int     `json:"top_k,omitempty"`
}

type rerankResponse struct {
	Results []domain.RerankResult `json:"results"`
}

func (r *Reranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]domain.RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	request := rerankRequest{Query: query, Documents: documents}
	if topK > 0 {
		request.TopK = &topK
	}

	var response rerankResponse
	err := r.run(ctx, "rerank", func(callCtx context.Context) error {
		return r.postJSON(callCtx, "/rerank", request, &response, "rerank")
	})
	if err != nil {
		return nil, err
	}
	return response.Results, nil
}
