package inference

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/resilience"
	openai "github.com/sashabaranov/go-openai"
)

type GeneratorOptions struct {
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
	Executor *resilience.Executor
}

// Generator talks to an OpenAI-compatible /v1/completions endpoint.
type Generator struct {
	transport
	client *openai.Client
	model  string
}

func NewGenerator(opts GeneratorOptions) *Generator {
	t := newTransport("generation", opts.BaseURL, opts.Timeout, opts.Executor)

	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = t.baseURL + "/v1"
	cfg.HTTPClient = t.httpClient

	return &Generator{
		transport: t,
		client:    openai.NewClientWithConfig(cfg),
		model:     opts.Model,
	}
}

func (g *Generator) Generate(ctx context.Context, prompt string, params domain.GenerationParams) (domain.Generation, error) {
	request := openai.CompletionRequest{
		Model:       g.model,
		Prompt:      prompt,
		MaxTokens:   params.MaxTokens,
		Temperature: float32(params.Temperature),
		TopP:        float32(params.TopP),
	}

	var response openai.CompletionResponse
	err := g.run(ctx, "complete", func(callCtx context.Context) error {
		var callErr error
		response, callErr = g.client.CreateCompletion(callCtx, request)
		return callErr
	})
	if err != nil {
		return domain.Generation{}, fmt.Errorf("create completion: %w", err)
	}
	if len(response.Choices) == 0 {
		return domain.Generation{}, domain.WrapError(domain.ErrContractViolation, "generate", fmt.Errorf("completion returned no choices"))
	}

	model := response.Model
	if model == "" {
		model = g.model
	}
	return domain.Generation{
		Text:             strings.TrimSpace(response.Choices[0].Text),
		PromptTokens:     response.Usage.PromptTokens,
		CompletionTokens: response.Usage.CompletionTokens,
		TotalTokens:      response.Usage.TotalTokens,
		Model:            model,
	}, nil
}

func (g *Generator) ModelName() string {
	return g.model
}

// Check probes GET /health, falling back to GET /v1/models for servers
// that only expose the OpenAI surface.
func (g *Generator) Check(ctx context.Context) error {
	if err := g.transport.Check(ctx); err == nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/models", nil)
	if err != nil {
		return fmt.Errorf("create models request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("generation health request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("generation health status: %s", resp.Status)
	}
	return nil
}
