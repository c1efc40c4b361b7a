package office

import (
	"archive/zip"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PptxReader extracts slide text in slide order.
type PptxReader struct{}

func NewPptxReader() *PptxReader {
	return &PptxReader{}
}

func (r *PptxReader) Read(_ context.Context, path string) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open pptx: %w", err)
	}
	defer archive.Close()

	slides := make([]*zip.File, 0)
	for _, file := range archive.File {
		if slideNumber(file.Name) > 0 {
			slides = append(slides, file)
		}
	}
	sort.Slice(slides, func(i, j int) bool {
		return slideNumber(slides[i].Name) < slideNumber(slides[j].Name)
	})

	collector := textCollector{textElement: "t", paragraphElement: "p"}
	parts := make([]string, 0, len(slides))
	for _, slide := range slides {
		text, err := readZipEntry(slide, collector)
		if err != nil {
			return "", err
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// slideNumber returns N for ppt/slides/slideN.xml and 0 otherwise.
func slideNumber(name string) int {
	const prefix, suffix = "ppt/slides/slide", ".xml"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix))
	if err != nil {
		return 0
	}
	return n
}
