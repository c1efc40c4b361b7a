package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/kirillkom/corpus-rag/internal/bootstrap"
	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/extractor"
)

type ocrFake struct{}

func (ocrFake) Read(context.Context, string) (string, error) {
	return "", errors.New("ocr not expected")
}

func TestPreviewChunksSplitsExtractedText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.txt")
	body := strings.Repeat("Employees accrue vacation monthly. ", 40)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	chunker, err := chunking.New(chunking.Options{Method: chunking.MethodRecursive, ChunkSize: 200, Overlap: 20})
	if err != nil {
		t.Fatalf("chunking.New() error = %v", err)
	}

	preview, err := previewChunks(context.Background(), bootstrap.NewExtractor(ocrFake{}, 0), chunker, path)
	if err != nil {
		t.Fatalf("previewChunks() error = %v", err)
	}
	if preview.ChunkCount < 2 || len(preview.Chunks) != preview.ChunkCount {
		t.Fatalf("expected several chunks, got %+v", preview)
	}
	for _, c := range preview.Chunks {
		if c.Length > 200 {
			t.Fatalf("chunk %d exceeds size: %d", c.Index, c.Length)
		}
	}
}

func TestPreviewChunksRejectsEmptyText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("   \n"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	chunker, _ := chunking.New(chunking.Options{ChunkSize: 100, Overlap: 10})

	if _, err := previewChunks(context.Background(), extractor.NewDispatcher(0), chunker, path); err == nil {
		t.Fatalf("expected error for a file without text")
	}
}

func TestPrincipalFromFlags(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		cmd := &cobra.Command{}
		cmd.Flags().Int64("user-id", 0, "")
		cmd.Flags().Int64("department-id", domain.WildcardID, "")
		cmd.Flags().Int64("role-id", domain.WildcardID, "")
		if err := cmd.Flags().Parse(args); err != nil {
			t.Fatalf("parse flags: %v", err)
		}
		return cmd
	}

	p, err := principalFromFlags(newCmd("--user-id", "17", "--department-id", "5"))
	if err != nil {
		t.Fatalf("principalFromFlags() error = %v", err)
	}
	if p != (domain.Principal{UserID: 17, DepartmentID: 5, RoleID: domain.WildcardID}) {
		t.Fatalf("unexpected principal %+v", p)
	}

	if _, err := principalFromFlags(newCmd()); err == nil {
		t.Fatalf("expected missing user id to fail")
	}
	if _, err := principalFromFlags(newCmd("--user-id", "1", "--role-id", "-3")); err == nil {
		t.Fatalf("expected negative role id to fail")
	}
}
