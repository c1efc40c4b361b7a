package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	t.Setenv("CHUNK_SIZE", "")
	t.Setenv("CHUNK_OVERLAP", "")
	t.Setenv("VECTOR_BACKEND", "")
	t.Setenv("SYNC_SCHEDULE", "")
	t.Setenv("INDEX_JOB_TIMEOUT", "")

	cfg := Load()
	if cfg.ChunkSize != 1000 || cfg.ChunkOverlap != 200 || cfg.ChunkMethod != "hybrid" {
		t.Fatalf("unexpected chunk defaults: size=%d overlap=%d method=%q", cfg.ChunkSize, cfg.ChunkOverlap, cfg.ChunkMethod)
	}
	if cfg.VectorBackend != VectorBackendQdrant {
		t.Fatalf("expected qdrant backend, got %q", cfg.VectorBackend)
	}
	if cfg.SyncSchedule != "0 2 * * *" {
		t.Fatalf("expected daily 02:00 sync, got %q", cfg.SyncSchedule)
	}
	if cfg.IndexJobTimeout != 10*time.Minute {
		t.Fatalf("expected 10m job timeout, got %v", cfg.IndexJobTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate, got %v", err)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	t.Setenv("VECTOR_BACKEND", "PGVECTOR")
	t.Setenv("RERANKER_TIMEOUT", "15")
	t.Setenv("QUEUE_WAIT_TIMEOUT", "250ms")
	t.Setenv("RAG_SIMILARITY_THRESHOLD", "0.35")
	t.Setenv("RERANKER_ENABLED", "false")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")

	cfg := Load()
	if cfg.VectorBackend != VectorBackendPgvector {
		t.Fatalf("expected pgvector backend, got %q", cfg.VectorBackend)
	}
	if cfg.RerankerTimeout != 15*time.Second || cfg.QueueWaitTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected durations: rerank=%v queue=%v", cfg.RerankerTimeout, cfg.QueueWaitTimeout)
	}
	if cfg.RAGScoreThreshold != 0.35 || cfg.RerankerEnabled {
		t.Fatalf("unexpected overrides: threshold=%v reranker=%v", cfg.RAGScoreThreshold, cfg.RerankerEnabled)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Fatalf("invalid int must fall back to default, got %d", cfg.WorkerConcurrency)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("CORPUS_ROOT=/srv/shared\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", envFile)
	t.Setenv("CORPUS_ROOT", "")
	os.Unsetenv("CORPUS_ROOT")

	cfg := Load()
	if cfg.CorpusRoot != "/srv/shared" {
		t.Fatalf("expected root from env file, got %q", cfg.CorpusRoot)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	base := Load()

	cases := map[string]func(*Config){
		"overlap equals size":  func(c *Config) { c.ChunkOverlap = c.ChunkSize },
		"zero chunk size":      func(c *Config) { c.ChunkSize = 0 },
		"unknown method":       func(c *Config) { c.ChunkMethod = "semantic" },
		"unknown backend":      func(c *Config) { c.VectorBackend = "milvus" },
		"top k above max":      func(c *Config) { c.RAGTopK = c.RAGMaxTopK + 1 },
		"bad policy":           func(c *Config) { c.HierarchyPolicy = "allow-all" },
		"empty root":           func(c *Config) { c.CorpusRoot = " " },
		"workers exhaust pool": func(c *Config) { c.WorkerConcurrency, c.PostgresMaxConns = 8, 8 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, domain.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestACLPolicyFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acl.yaml")
	content := "unmatched:\n  mode: default\n  department_id: 3\n  role_id: 1\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	cfg := Config{HierarchyPolicy: "reject", ACLPolicyFile: path}
	policy, err := cfg.ACLPolicy()
	if err != nil {
		t.Fatalf("ACLPolicy() error = %v", err)
	}
	if policy.Mode != domain.HierarchyDefault || policy.DepartmentID != 3 || policy.RoleID != 1 {
		t.Fatalf("unexpected policy %+v", policy)
	}
}

func TestACLPolicyFileErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("unmatched:\n  mode: everyone\n"), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	for _, path := range []string{bad, filepath.Join(dir, "missing.yaml")} {
		if _, err := LoadACLPolicyFile(path); !errors.Is(err, domain.ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", path, err)
		}
	}
}

func TestLoadResilienceServiceOverrides(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	t.Setenv("RESILIENCE_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("RESILIENCE_QDRANT_RETRY_MAX_ATTEMPTS", "2")
	t.Setenv("RESILIENCE_BREAKER_FAILURE_RATIO", "1.5")

	cfg := Load()
	if cfg.Resilience.Retry.MaxAttempts != 5 {
		t.Fatalf("expected base retry attempts 5, got %d", cfg.Resilience.Retry.MaxAttempts)
	}
	if cfg.Resilience.Services["qdrant"].MaxAttempts != 2 {
		t.Fatalf("expected qdrant override 2, got %+v", cfg.Resilience.Services["qdrant"])
	}
	if cfg.Resilience.Services["reranker"].MaxAttempts != 1 {
		t.Fatalf("expected reranker default override to survive, got %+v", cfg.Resilience.Services["reranker"])
	}
	if err := cfg.Validate(); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected failure ratio 1.5 to be rejected, got %v", err)
	}
}
