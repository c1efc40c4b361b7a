package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/resilience"
)

const scrollPageSize = 256

type Options struct {
	Collection string
	APIKey     string
	Timeout    time.Duration
	Executor   *resilience.Executor
}

type Client struct {
	baseURL    string
	collection string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	collection := strings.TrimSpace(opts.Collection)
	if collection == "" {
		collection = "documents"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.Executor,
	}
}

type pointBody struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) Upsert(ctx context.Context, points []domain.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	if err := c.ensureCollection(ctx, len(points[0].Vector)); err != nil {
		return err
	}

	body := make([]pointBody, 0, len(points))
	for _, p := range points {
		if len(p.Vector) != len(points[0].Vector) {
			return domain.WrapError(domain.ErrContractViolation, "qdrant upsert",
				fmt.Errorf("point %s has dimension %d, expected %d", p.ID, len(p.Vector), len(points[0].Vector)))
		}
		body = append(body, pointBody{ID: p.ID, Vector: p.Vector, Payload: payloadMap(p.Payload)})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.run(ctx, "upsert", func(ctx context.Context) error {
		return c.do(ctx, http.MethodPut, path, map[string]any{"points": body}, nil, "upsert")
	})
}

func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	scoreThreshold float64,
	filter domain.AccessFilter,
) ([]domain.RetrievedChunk, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if scoreThreshold > 0 {
		reqBody["score_threshold"] = scoreThreshold
	}
	if f := buildFilter(filter); f != nil {
		reqBody["filter"] = f
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	err := c.run(ctx, "search", func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, path, reqBody, &searchResp, "search")
	})
	if isNotFound(err) {
		// Nothing has been indexed yet.
		return []domain.RetrievedChunk{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RetrievedChunk{
			PointID:      fmt.Sprint(r.ID),
			DocumentID:   getIntPayload(r.Payload, "document_id"),
			ChunkIndex:   int(getIntPayload(r.Payload, "chunk_index")),
			Filename:     getStringPayload(r.Payload, "filename"),
			FilePath:     getStringPayload(r.Payload, "file_path"),
			Content:      getStringPayload(r.Payload, "content"),
			Score:        r.Score,
			DepartmentID: getIntPayload(r.Payload, domain.FieldDepartmentID),
			RoleID:       getIntPayload(r.Payload, domain.FieldRoleID),
		})
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, pointIDs []string) error {
	if len(pointIDs) == 0 {
		return nil
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	err := c.run(ctx, "delete", func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, path, map[string]any{"points": pointIDs}, nil, "delete")
	})
	if isNotFound(err) {
		return nil
	}
	return err
}

// PointIDsByDocument scrolls every point whose payload carries documentID.
func (c *Client) PointIDsByDocument(ctx context.Context, documentID int64) ([]string, error) {
	path := fmt.Sprintf("/collections/%s/points/scroll", c.collection)
	ids := make([]string, 0)
	var offset any
	for {
		reqBody := map[string]any{
			"filter":       buildFilter(domain.AccessFilter{Must: []domain.AnyOf{{Field: "document_id", Values: []int64{documentID}}}}),
			"limit":        scrollPageSize,
			"with_payload": false,
			"with_vector":  false,
		}
		if offset != nil {
			reqBody["offset"] = offset
		}

		var scrollResp struct {
			Result struct {
				Points []struct {
					ID any `json:"id"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		err := c.run(ctx, "scroll", func(ctx context.Context) error {
			return c.do(ctx, http.MethodPost, path, reqBody, &scrollResp, "scroll")
		})
		if isNotFound(err) {
			return ids, nil
		}
		if err != nil {
			return nil, err
		}
		for _, p := range scrollResp.Result.Points {
			ids = append(ids, fmt.Sprint(p.ID))
		}
		if scrollResp.Result.NextPageOffset == nil {
			return ids, nil
		}
		offset = scrollResp.Result.NextPageOffset
	}
}

func (c *Client) Name() string {
	return "qdrant"
}

func (c *Client) Check(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, "health")
}

func (c *Client) run(ctx context.Context, operation string, call func(context.Context) error) error {
	name := "qdrant." + operation
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, name, call, classifyQdrantError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(name, err)
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any, operation string) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newStatusError(operation, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func payloadMap(p domain.PointPayload) map[string]any {
	return map[string]any{
		"document_id":   p.DocumentID,
		"chunk_index":   p.ChunkIndex,
		"content":       p.Content,
		"filename":      p.Filename,
		"file_path":     p.FilePath,
		"file_type":     p.FileType,
		"department_id": p.DepartmentID,
		"role_id":       p.RoleID,
	}
}

func isNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int64 {
	switch v := payload[key].(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
