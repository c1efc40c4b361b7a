// Package inference holds HTTP clients for the model-serving collaborators:
// embedding, reranking, OCR and OpenAI-compatible generation.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/corpus-rag/internal/infrastructure/resilience"
)

// transport is the JSON-over-HTTP plumbing shared by the collaborator clients.
type transport struct {
	service    string
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func newTransport(service, baseURL string, timeout time.Duration, executor *resilience.Executor) transport {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return transport{
		service:    service,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

// run executes call under the resilience policy for operation and marks
// retryable failures as temporary.
func (t transport) run(ctx context.Context, operation string, call func(context.Context) error) error {
	name := t.service + "." + operation
	var err error
	if t.executor != nil {
		err = t.executor.Execute(ctx, name, call, classifyHTTPError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(name, err)
}

func (t transport) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}
	return t.post(ctx, path, "application/json", body, out, operation)
}

func (t transport) post(ctx context.Context, path, contentType string, body []byte, out any, operation string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s request: %w", t.service, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newHTTPStatusError(t.service+" "+operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func (t transport) Name() string {
	return t.service
}

// Check probes the collaborator's GET /health endpoint.
func (t transport) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s health request: %w", t.service, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s health status: %s", t.service, resp.Status)
	}
	return nil
}
