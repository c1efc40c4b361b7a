package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// indexedPayloadFields get integer payload indexes so filtered search and
// scroll by document stay cheap.
var indexedPayloadFields = []string{"document_id", "department_id", "role_id"}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	path := fmt.Sprintf("/collections/%s", c.collection)
	err := c.do(ctx, http.MethodPut, path, reqBody, nil, "ensure collection")
	// 409 means the collection already exists on this Qdrant version.
	if err != nil && !isConflict(err) {
		return err
	}

	for _, field := range indexedPayloadFields {
		indexBody := map[string]any{"field_name": field, "field_schema": "integer"}
		indexPath := fmt.Sprintf("/collections/%s/index?wait=true", c.collection)
		if err := c.do(ctx, http.MethodPut, indexPath, indexBody, nil, "create payload index"); err != nil && !isConflict(err) {
			slog.Warn("qdrant_payload_index_failed", "collection", c.collection, "field", field, "error", err)
		}
	}

	c.markCollectionEnsured(vectorSize)
	slog.Info("qdrant_collection_ready", "collection", c.collection, "vector_size", vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}
