package office

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, name string, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w := zip.NewWriter(file)
	for entryName, body := range entries {
		entry, err := w.Create(entryName)
		if err != nil {
			t.Fatalf("create entry: %v", err)
		}
		if _, err := entry.Write([]byte(body)); err != nil {
			t.Fatalf("write entry: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

func TestDocxReaderExtractsParagraphs(t *testing.T) {
	path := writeZip(t, "policy.docx", map[string]string{
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>Leave </w:t></w:r><w:r><w:t>policy</w:t></w:r></w:p>
<w:p></w:p>
<w:p><w:r><w:t>Twenty days per year.</w:t></w:r></w:p>
</w:body></w:document>`,
		"docProps/core.xml": `<coreProperties><title>ignored</title></coreProperties>`,
	})

	text, err := NewDocxReader().Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if want := "Leave policy\nTwenty days per year."; text != want {
		t.Fatalf("Read() = %q, want %q", text, want)
	}
}

func TestPptxReaderOrdersSlides(t *testing.T) {
	slide := func(text string) string {
		return `<p:sld xmlns:p="p" xmlns:a="a"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` +
			text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
	}
	path := writeZip(t, "deck.pptx", map[string]string{
		"ppt/slides/slide10.xml":            slide("tenth"),
		"ppt/slides/slide2.xml":             slide("second"),
		"ppt/slides/slide1.xml":             slide("first"),
		"ppt/slides/_rels/slide1.xml.rels":  "<Relationships/>",
		"ppt/slideLayouts/slideLayout1.xml": slide("layout"),
	})

	text, err := NewPptxReader().Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if want := "first\nsecond\ntenth"; text != want {
		t.Fatalf("Read() = %q, want %q", text, want)
	}
}

func TestDocxReaderRejectsNonZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.docx")
	if err := os.WriteFile(path, []byte("not a zip"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewDocxReader().Read(context.Background(), path); err == nil {
		t.Fatal("expected error for non-zip input")
	}
}
