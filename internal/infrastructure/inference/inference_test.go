package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/resilience"
)

func TestEmbedderSendsNormalizedBatch(t *testing.T) {
	var captured embedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2],[0.3,0.4]],"dimension":2}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(EmbedderOptions{BaseURL: server.URL + "/", Model: "e5", BatchSize: 16})
	vectors, err := embedder.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || vectors[1][1] != 0.4 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
	if !captured.Normalize || captured.BatchSize != 16 || len(captured.Texts) != 2 {
		t.Fatalf("unexpected request: %+v", captured)
	}
	if embedder.ModelName() != "e5" {
		t.Fatalf("unexpected model name %q", embedder.ModelName())
	}
}

func TestEmbedderRejectsDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2],[0.3]],"dimension":2}`))
	}))
	defer server.Close()

	_, err := NewEmbedder(EmbedderOptions{BaseURL: server.URL}).Embed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrContractViolation) {
		t.Fatalf("expected contract violation, got %v", err)
	}
}

func TestEmbedderIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewEmbedder(EmbedderOptions{BaseURL: server.URL}).Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected 502 to be temporary, got %v", err)
	}
}

func TestEmbedderRetriesThroughExecutor(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[1]],"dimension":1}`))
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{
		Retry: resilience.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})
	vector, err := NewEmbedder(EmbedderOptions{BaseURL: server.URL, Executor: executor}).EmbedQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vector) != 1 || calls.Load() != 2 {
		t.Fatalf("expected one retry, calls=%d vector=%v", calls.Load(), vector)
	}
}

func TestRerankerPostsQueryAndTopK(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"results":[{"index":1,"relevance_score":0.9},{"index":0,"relevance_score":0.1}]}`))
	}))
	defer server.Close()

	results, err := NewReranker(RerankerOptions{BaseURL: server.URL}).Rerank(context.Background(), "leave", []string{"a", "b"}, 2)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(results) != 2 || results[0].Index != 1 || results[0].RelevanceScore != 0.9 {
		t.Fatalf("unexpected results: %+v", results)
	}
	if captured["query"] != "leave" || captured["top_k"] != float64(2) {
		t.Fatalf("unexpected request: %v", captured)
	}
}

func TestRerankerClientErrorIsNotTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	_, err := NewReranker(RerankerOptions{BaseURL: server.URL}).Rerank(context.Background(), "q", []string{"a"}, 1)
	if err == nil || errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected non-temporary error, got %v", err)
	}
}

func TestOCRSendsMultipartImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ocr" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		if header.Filename != "scan.tiff" || header.Header.Get("Content-Type") != "image/tiff" {
			t.Errorf("unexpected file header: %s %s", header.Filename, header.Header.Get("Content-Type"))
		}
		if r.FormValue("language") != "ko" {
			t.Errorf("unexpected language %q", r.FormValue("language"))
		}
		_, _ = w.Write([]byte(`{"status":"success","text":"  scanned text \n"}`))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "scan.tiff")
	if err := os.WriteFile(path, []byte("II*\x00"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	text, err := NewOCR(OCROptions{BaseURL: server.URL, Language: "ko"}).Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if text != "scanned text" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestGeneratorUsesCompletionsEndpoint(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/completions" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"text_completion","model":"qwen","choices":[{"text":" Twenty days. ","index":0}],"usage":{"prompt_tokens":40,"completion_tokens":3,"total_tokens":43}}`))
	}))
	defer server.Close()

	gen := NewGenerator(GeneratorOptions{BaseURL: server.URL, Model: "qwen"})
	out, err := gen.Generate(context.Background(), "prompt", domain.GenerationParams{Temperature: 0.5, MaxTokens: 64, TopP: 0.9})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out.Text != "Twenty days." || out.TotalTokens != 43 || out.Model != "qwen" {
		t.Fatalf("unexpected generation: %+v", out)
	}
	if captured["prompt"] != "prompt" || captured["max_tokens"] != float64(64) {
		t.Fatalf("unexpected request: %v", captured)
	}
}

func TestTransportCheckUsesHealthEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	reranker := NewReranker(RerankerOptions{BaseURL: server.URL})
	if reranker.Name() != "reranker" {
		t.Fatalf("unexpected name %q", reranker.Name())
	}
	if err := reranker.Check(context.Background()); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
}
