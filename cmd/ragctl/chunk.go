package main

import (
	"context"
	"fmt"
	"path/filepath"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/kirillkom/corpus-rag/internal/bootstrap"
	"github.com/kirillkom/corpus-rag/internal/core/ports"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/inference"
)

type textExtractor interface {
	Extract(ctx context.Context, path, fileType string) (string, error)
}

type chunkPreview struct {
	Path       string         `json:"path"`
	Method     string         `json:"method"`
	TextLength int            `json:"text_length"`
	ChunkCount int            `json:"chunk_count"`
	Chunks     []chunkSummary `json:"chunks"`
}

type chunkSummary struct {
	Index  int    `json:"index"`
	Length int    `json:"length"`
	Tokens int    `json:"estimated_tokens"`
	Text   string `json:"text"`
}

var chunkCmd = &cobra.Command{
	Use:   "chunk <file>",
	Short: "Extract a file and show how it would be chunked",
	Long: `Runs text extraction and the configured chunker against a local file
without touching any store. Raster images are sent to the OCR service.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		method, err := cmd.Flags().GetString("method")
		if err != nil {
			return err
		}
		if method == "" {
			method = cfg.ChunkMethod
		}
		chunker, err := chunking.New(chunking.Options{
			Method:    method,
			ChunkSize: cfg.ChunkSize,
			Overlap:   cfg.ChunkOverlap,
		})
		if err != nil {
			return err
		}
		ocr := inference.NewOCR(inference.OCROptions{
			BaseURL:  cfg.OCRURL,
			Language: cfg.OCRLanguage,
			Timeout:  cfg.OCRTimeout,
		})

		preview, err := previewChunks(cmd.Context(), bootstrap.NewExtractor(ocr, cfg.ExtractTimeout), chunker, args[0])
		if err != nil {
			return err
		}
		preview.Method = method
		return printJSON(cmd.OutOrStdout(), preview)
	},
}

func previewChunks(ctx context.Context, extractor textExtractor, chunker ports.Chunker, path string) (chunkPreview, error) {
	text, err := extractor.Extract(ctx, path, filepath.Ext(path))
	if err != nil {
		return chunkPreview{}, err
	}
	if text == "" {
		return chunkPreview{}, fmt.Errorf("%s: no text extracted", path)
	}

	chunks := chunker.Split(text)
	preview := chunkPreview{
		Path:       path,
		TextLength: utf8.RuneCountInString(text),
		ChunkCount: len(chunks),
		Chunks:     make([]chunkSummary, 0, len(chunks)),
	}
	for i, c := range chunks {
		preview.Chunks = append(preview.Chunks, chunkSummary{
			Index:  i,
			Length: utf8.RuneCountInString(c),
			Tokens: chunking.EstimateTokens(c),
			Text:   c,
		})
	}
	return preview, nil
}

func init() {
	chunkCmd.Flags().String("method", "", "chunking method (recursive, token, hybrid); defaults to CHUNK_METHOD")
	rootCmd.AddCommand(chunkCmd)
}
