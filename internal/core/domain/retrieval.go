package domain

import "time"

// Principal is the authenticated caller as resolved by the gateway.
type Principal struct {
	UserID       int64
	DepartmentID int64
	RoleID       int64
}

type RetrievedChunk struct {
	PointID      string   `json:"point_id,omitempty"`
	DocumentID   int64    `json:"document_id"`
	ChunkIndex   int      `json:"chunk_index"`
	Filename     string   `json:"filename"`
	FilePath     string   `json:"-"`
	Content      string   `json:"content"`
	Score        float64  `json:"score"`
	RerankScore  *float64 `json:"rerank_score,omitempty"`
	DepartmentID int64    `json:"department_id"`
	RoleID       int64    `json:"role_id"`
}

type RerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type GenerationParams struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

type Generation struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

type AskRequest struct {
	Query          string   `json:"query"`
	ConversationID string   `json:"conversation_id,omitempty"`
	TopK           int      `json:"top_k,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	MaxTokens      int      `json:"max_tokens,omitempty"`
	TopP           *float64 `json:"top_p,omitempty"`
}

type Source struct {
	DocumentID  int64    `json:"document_id"`
	ChunkIndex  int      `json:"chunk_index"`
	Filename    string   `json:"filename"`
	Score       float64  `json:"score"`
	RerankScore *float64 `json:"rerank_score,omitempty"`
	Content     string   `json:"content"`
}

type Answer struct {
	Text           string        `json:"response"`
	ConversationID string        `json:"conversation_id"`
	Sources        []Source      `json:"retrieved_documents"`
	TokenCount     int           `json:"token_count"`
	Latency        time.Duration `json:"-"`
	LatencyMS      int64         `json:"latency_ms"`
	Model          string        `json:"model_name"`
}
