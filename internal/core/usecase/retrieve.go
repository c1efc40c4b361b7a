package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/core/ports"
)

const defaultCandidateMultiplier = 4

type RetrieverOptions struct {
	// CandidateMultiplier widens the vector search to topK*multiplier to give
	// the reranker headroom.
	CandidateMultiplier int
	// ScoreThreshold drops candidates below this similarity; zero disables it.
	ScoreThreshold float64
	RerankTimeout  time.Duration
	// OnRerankFallback is called with a short reason whenever similarity order
	// is returned because the reranker failed.
	OnRerankFallback func(reason string)
}

// Retriever runs RBAC-filtered vector search followed by an optional rerank.
type Retriever struct {
	embedder ports.Embedder
	vectors  ports.VectorStore
	reranker ports.Reranker
	opts     RetrieverOptions
}

// NewRetriever builds a Retriever. A nil reranker disables reranking.
func NewRetriever(embedder ports.Embedder, vectors ports.VectorStore, reranker ports.Reranker, opts RetrieverOptions) *Retriever {
	if opts.CandidateMultiplier <= 0 {
		opts.CandidateMultiplier = defaultCandidateMultiplier
	}
	return &Retriever{
		embedder: embedder,
		vectors:  vectors,
		reranker: reranker,
		opts:     opts,
	}
}

func (r *Retriever) Retrieve(ctx context.Context, principal domain.Principal, query string, topK int) ([]domain.RetrievedChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("query is empty"))
	}
	if topK <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("top_k must be positive, got %d", topK))
	}

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	filter := domain.NewAccessFilter(principal)
	candidates, err := r.vectors.Search(ctx, queryVector, topK*r.opts.CandidateMultiplier, r.opts.ScoreThreshold, filter)
	if err != nil {
		return nil, fmt.Errorf("search vector db: %w", err)
	}
	if len(candidates) == 0 {
		return []domain.RetrievedChunk{}, nil
	}
	sortBySimilarity(candidates)

	if r.reranker == nil {
		return truncate(candidates, topK), nil
	}
	return r.rerank(ctx, query, candidates, topK), nil
}

// rerank reorders candidates by relevance score. Any reranker failure falls
// back to similarity order.
func (r *Retriever) rerank(ctx context.Context, query string, candidates []domain.RetrievedChunk, topK int) []domain.RetrievedChunk {
	if r.opts.RerankTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.RerankTimeout)
		defer cancel()
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Content
	}
	results, err := r.reranker.Rerank(ctx, query, texts, topK)
	if err != nil {
		r.fallback("error", err)
		return truncate(candidates, topK)
	}

	reordered := applyRerank(candidates, results)
	if len(reordered) == 0 {
		r.fallback("empty", errors.New("reranker returned no usable results"))
		return truncate(candidates, topK)
	}
	return truncate(reordered, topK)
}

func (r *Retriever) fallback(reason string, err error) {
	slog.Warn("rerank_fallback", "reason", reason, "error", err)
	if r.opts.OnRerankFallback != nil {
		r.opts.OnRerankFallback(reason)
	}
}

// applyRerank returns the candidates named by results ordered by relevance
// score, followed by the unranked rest in similarity order. Out-of-range and
// repeated indices are ignored.
func applyRerank(candidates []domain.RetrievedChunk, results []domain.RerankResult) []domain.RetrievedChunk {
	used := make([]bool, len(candidates))
	ranked := make([]domain.RetrievedChunk, 0, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(candidates) || used[res.Index] {
			continue
		}
		used[res.Index] = true
		chunk := candidates[res.Index]
		score := res.RelevanceScore
		chunk.RerankScore = &score
		ranked = append(ranked, chunk)
	}
	if len(ranked) == 0 {
		return nil
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return *ranked[i].RerankScore > *ranked[j].RerankScore
	})
	for i, c := range candidates {
		if !used[i] {
			ranked = append(ranked, c)
		}
	}
	return ranked
}

func sortBySimilarity(chunks []domain.RetrievedChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
}

func truncate(chunks []domain.RetrievedChunk, topK int) []domain.RetrievedChunk {
	if len(chunks) > topK {
		return chunks[:topK]
	}
	return chunks
}
