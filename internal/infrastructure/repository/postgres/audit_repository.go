package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Insert(ctx context.Context, rec domain.AuditRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_logs (
	user_id, department_id, role_id, action_type, query_text, response_text, retrieved_doc_count,
	token_count, latency_ms, success, error_message, ip_address, user_agent, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		rec.UserID, rec.DepartmentID, rec.RoleID, rec.Action, rec.QueryPreview, rec.ResponsePreview,
		rec.RetrievedCount, rec.TokenCount, rec.LatencyMS, rec.Success, rec.ErrorMessage,
		rec.IPAddress, rec.UserAgent, rec.CreatedAt,
	)
	if err != nil {
		return wrapConnErr("insert audit log", err)
	}
	return nil
}

// ListByUser returns the user's chat queries, newest first.
func (r *AuditRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.AuditRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, department_id, role_id, action_type, query_text, response_text, retrieved_doc_count,
	token_count, latency_ms, success, error_message, ip_address, user_agent, created_at
FROM audit_logs
WHERE user_id = $1 AND action_type = $2
ORDER BY created_at DESC
LIMIT $3
`, userID, domain.AuditActionChatQuery, limit)
	if err != nil {
		return nil, wrapConnErr("list audit logs", err)
	}
	defer rows.Close()

	out := make([]domain.AuditRecord, 0)
	for rows.Next() {
		var rec domain.AuditRecord
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.DepartmentID, &rec.RoleID, &rec.Action, &rec.QueryPreview, &rec.ResponsePreview,
			&rec.RetrievedCount, &rec.TokenCount, &rec.LatencyMS, &rec.Success, &rec.ErrorMessage,
			&rec.IPAddress, &rec.UserAgent, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	return out, nil
}
