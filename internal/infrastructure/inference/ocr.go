package inference

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/corpus-rag/internal/infrastructure/resilience"
)

type OCROptions struct {
	BaseURL  string
	Language string
	Timeout  time.Duration
	Executor *resilience.Executor
}

// OCR sends raster images to POST /ocr and returns the recognised text.
type OCR struct {
	transport
	language string
}

func NewOCR(opts OCROptions) *OCR {
	language := strings.TrimSpace(opts.Language)
	if language == "" {
		language = "en"
	}
	return &OCR{
		transport: newTransport("ocr", opts.BaseURL, opts.Timeout, opts.Executor),
		language:  language,
	}
}

type ocrResponse struct {
	Text string `json:"text"`
}

func (o *OCR) Read(ctx context.Context, path string) (string, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	body, contentType, err := o.multipartBody(filepath.Base(path), image)
	if err != nil {
		return "", err
	}

	var response ocrResponse
	err = o.run(ctx, "recognize", func(callCtx context.Context) error {
		return o.post(callCtx, "/ocr", contentType, body, &response, "recognize")
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Text), nil
}

func (o *OCR) multipartBody(filename string, image []byte) ([]byte, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", imageContentType(filename))
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create ocr file part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("write ocr file part: %w", err)
	}
	if err := writer.WriteField("language", o.language); err != nil {
		return nil, "", fmt.Errorf("write ocr language: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close ocr body: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func imageContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return "image/png"
	}
}
