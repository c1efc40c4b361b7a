package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusIndexed    DocumentStatus = "indexed"
	StatusFailed     DocumentStatus = "failed"
)

// WildcardID marks content visible to every department or role.
const WildcardID int64 = 0

type Document struct {
	ID           int64          `json:"id"`
	Path         string         `json:"path"`
	Filename     string         `json:"filename"`
	FileType     string         `json:"file_type"`
	Size         int64          `json:"size"`
	ContentHash  string         `json:"content_hash"`
	DepartmentID int64          `json:"department_id"`
	RoleID       int64          `json:"role_id"`
	Status       DocumentStatus `json:"status"`
	Version      int            `json:"version"`
	ChunkCount   int            `json:"chunk_count"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	IndexedAt    *time.Time     `json:"indexed_at,omitempty"`
}

type Chunk struct {
	DocumentID     int64  `json:"document_id"`
	Index          int    `json:"chunk_index"`
	Content        string `json:"content"`
	TokenCount     int    `json:"token_count"`
	PointID        string `json:"point_id"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
}

// VectorPoint is one embedding plus the payload mirrored from its document row.
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload PointPayload
}

type PointPayload struct {
	DocumentID   int64  `json:"document_id"`
	ChunkIndex   int    `json:"chunk_index"`
	Content      string `json:"content"`
	Filename     string `json:"filename"`
	FilePath     string `json:"file_path"`
	FileType     string `json:"file_type"`
	DepartmentID int64  `json:"department_id"`
	RoleID       int64  `json:"role_id"`
}

// DocumentFilter narrows document listings. Zero values match everything.
type DocumentFilter struct {
	Status DocumentStatus
	Access AccessFilter
	Limit  int
	Offset int
}
