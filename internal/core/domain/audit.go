package domain

import "time"

const (
	AuditActionChatQuery   = "chat_query"
	AuditActionSearchQuery = "search_query"
)

type AuditRecord struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	DepartmentID    int64     `json:"department_id"`
	RoleID          int64     `json:"role_id"`
	Action          string    `json:"action_type"`
	QueryPreview    string    `json:"query"`
	ResponsePreview string    `json:"response"`
	RetrievedCount  int       `json:"retrieved_doc_count"`
	TokenCount      int       `json:"token_count"`
	LatencyMS       int64     `json:"latency_ms"`
	Success         bool      `json:"success"`
	ErrorMessage    string    `json:"error,omitempty"`
	IPAddress       string    `json:"ip_address,omitempty"`
	UserAgent       string    `json:"user_agent,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ClientInfo carries request metadata copied into audit records.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}
