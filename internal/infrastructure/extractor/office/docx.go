package office

import (
	"archive/zip"
	"context"
	"fmt"
	"strings"
)

// DocxReader extracts paragraph text from word/document.xml.
type DocxReader struct{}

func NewDocxReader() *DocxReader {
	return &DocxReader{}
}

func (r *DocxReader) Read(_ context.Context, path string) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer archive.Close()

	collector := textCollector{textElement: "t", paragraphElement: "p"}
	parts := make([]string, 0, 1)
	for _, file := range archive.File {
		if file.Name != "word/document.xml" {
			continue
		}
		text, err := readZipEntry(file, collector)
		if err != nil {
			return "", err
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n"), nil
}
