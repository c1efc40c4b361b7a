package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/core/ports"
)

const (
	queryPreviewRunes    = 500
	responsePreviewRunes = 200
	sourcePreviewRunes   = 500
)

type AnswerOptions struct {
	DefaultTopK        int
	MaxTopK            int
	DefaultTemperature float64
	DefaultMaxTokens   int
	MaxTokensLimit     int
	DefaultTopP        float64
	ModelName          string
}

func (o AnswerOptions) withDefaults() AnswerOptions {
	if o.DefaultTopK <= 0 {
		o.DefaultTopK = 5
	}
	if o.MaxTopK <= 0 {
		o.MaxTopK = 20
	}
	if o.DefaultTemperature < 0 {
		o.DefaultTemperature = 0.7
	}
	if o.DefaultMaxTokens <= 0 {
		o.DefaultMaxTokens = 1024
	}
	if o.MaxTokensLimit <= 0 {
		o.MaxTokensLimit = 4096
	}
	if o.DefaultTopP <= 0 || o.DefaultTopP > 1 {
		o.DefaultTopP = 1
	}
	return o
}

type chunkRetriever interface {
	Retrieve(ctx context.Context, principal domain.Principal, query string, topK int) ([]domain.RetrievedChunk, error)
}

// AnswerOrchestrator answers questions from retrieved passages and writes
// exactly one audit record per call.
type AnswerOrchestrator struct {
	retriever chunkRetriever
	generator ports.AnswerGenerator
	audit     ports.AuditSink
	history   ports.AuditRepository
	opts      AnswerOptions
	now       func() time.Time
}

func NewAnswerOrchestrator(
	retriever chunkRetriever,
	generator ports.AnswerGenerator,
	audit ports.AuditSink,
	history ports.AuditRepository,
	opts AnswerOptions,
) *AnswerOrchestrator {
	return &AnswerOrchestrator{
		retriever: retriever,
		generator: generator,
		audit:     audit,
		history:   history,
		opts:      opts.withDefaults(),
		now:       time.Now,
	}
}

func (uc *AnswerOrchestrator) Ask(
	ctx context.Context,
	principal domain.Principal,
	req domain.AskRequest,
	client domain.ClientInfo,
) (answer *domain.Answer, err error) {
	started := uc.now()
	query := strings.TrimSpace(req.Query)
	record := uc.newAuditRecord(principal, domain.AuditActionChatQuery, query, client)
	defer func() {
		record.LatencyMS = uc.now().Sub(started).Milliseconds()
		if err != nil {
			record.Success = false
			record.ErrorMessage = err.Error()
		} else {
			record.Success = true
			record.ResponsePreview = truncateRunes(answer.Text, responsePreviewRunes)
			record.RetrievedCount = len(answer.Sources)
			record.TokenCount = answer.TokenCount
		}
		uc.audit.Record(record)
	}()

	topK, params, err := uc.resolveParams(query, req)
	if err != nil {
		return nil, err
	}

	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	chunks, err := uc.retriever.Retrieve(ctx, principal, query, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	if len(chunks) == 0 {
		return uc.finish(&domain.Answer{
			Text:           NoRelevantDocumentsAnswer,
			ConversationID: conversationID,
			Sources:        []domain.Source{},
			Model:          uc.opts.ModelName,
		}, started), nil
	}

	generation, err := uc.generator.Generate(ctx, buildAnswerPrompt(query, chunks), params)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	model := generation.Model
	if model == "" {
		model = uc.opts.ModelName
	}
	return uc.finish(&domain.Answer{
		Text:           generation.Text,
		ConversationID: conversationID,
		Sources:        toSources(chunks),
		TokenCount:     generation.TotalTokens,
		Model:          model,
	}, started), nil
}

// Search returns the passages the caller may see without generating an answer.
func (uc *AnswerOrchestrator) Search(
	ctx context.Context,
	principal domain.Principal,
	query string,
	topK int,
	client domain.ClientInfo,
) (chunks []domain.RetrievedChunk, err error) {
	started := uc.now()
	query = strings.TrimSpace(query)
	record := uc.newAuditRecord(principal, domain.AuditActionSearchQuery, query, client)
	defer func() {
		record.LatencyMS = uc.now().Sub(started).Milliseconds()
		record.Success = err == nil
		record.RetrievedCount = len(chunks)
		if err != nil {
			record.ErrorMessage = err.Error()
		}
		uc.audit.Record(record)
	}()

	if topK == 0 {
		topK = uc.opts.DefaultTopK
	}
	if err := uc.validateQuery(query, topK); err != nil {
		return nil, err
	}

	chunks, err = uc.retriever.Retrieve(ctx, principal, query, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	for i := range chunks {
		chunks[i].Content = truncateRunes(chunks[i].Content, sourcePreviewRunes)
	}
	return chunks, nil
}

// History lists the caller's own past chat queries, newest first.
func (uc *AnswerOrchestrator) History(ctx context.Context, principal domain.Principal, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	records, err := uc.history.ListByUser(ctx, principal.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return records, nil
}

func (uc *AnswerOrchestrator) resolveParams(query string, req domain.AskRequest) (int, domain.GenerationParams, error) {
	topK := req.TopK
	if topK == 0 {
		topK = uc.opts.DefaultTopK
	}
	if err := uc.validateQuery(query, topK); err != nil {
		return 0, domain.GenerationParams{}, err
	}

	params := domain.GenerationParams{
		Temperature: uc.opts.DefaultTemperature,
		MaxTokens:   uc.opts.DefaultMaxTokens,
		TopP:        uc.opts.DefaultTopP,
	}
	if req.Temperature != nil {
		params.Temperature = *req.Temperature
	}
	if req.MaxTokens != 0 {
		params.MaxTokens = req.MaxTokens
	}
	if req.TopP != nil {
		params.TopP = *req.TopP
	}

	if params.Temperature < 0 || params.Temperature > 2 {
		return 0, params, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("temperature must be within [0, 2], got %g", params.Temperature))
	}
	if params.MaxTokens < 1 || params.MaxTokens > uc.opts.MaxTokensLimit {
		return 0, params, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("max_tokens must be within [1, %d], got %d", uc.opts.MaxTokensLimit, params.MaxTokens))
	}
	if params.TopP <= 0 || params.TopP > 1 {
		return 0, params, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("top_p must be within (0, 1], got %g", params.TopP))
	}
	return topK, params, nil
}

func (uc *AnswerOrchestrator) validateQuery(query string, topK int) error {
	if query == "" {
		return domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("query is empty"))
	}
	if topK < 1 || topK > uc.opts.MaxTopK {
		return domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("top_k must be within [1, %d], got %d", uc.opts.MaxTopK, topK))
	}
	return nil
}

func (uc *AnswerOrchestrator) newAuditRecord(principal domain.Principal, action, query string, client domain.ClientInfo) domain.AuditRecord {
	return domain.AuditRecord{
		UserID:       principal.UserID,
		DepartmentID: principal.DepartmentID,
		RoleID:       principal.RoleID,
		Action:       action,
		QueryPreview: truncateRunes(query, queryPreviewRunes),
		IPAddress:    client.IPAddress,
		UserAgent:    client.UserAgent,
		CreatedAt:    uc.now().UTC(),
	}
}

func (uc *AnswerOrchestrator) finish(answer *domain.Answer, started time.Time) *domain.Answer {
	answer.Latency = uc.now().Sub(started)
	answer.LatencyMS = answer.Latency.Milliseconds()
	return answer
}

func toSources(chunks []domain.RetrievedChunk) []domain.Source {
	sources := make([]domain.Source, 0, len(chunks))
	for _, c := range chunks {
		sources = append(sources, domain.Source{
			DocumentID:  c.DocumentID,
			ChunkIndex:  c.ChunkIndex,
			Filename:    c.Filename,
			Score:       c.Score,
			RerankScore: c.RerankScore,
			Content:     truncateRunes(c.Content, sourcePreviewRunes),
		})
	}
	return sources
}
