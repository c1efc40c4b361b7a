package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

type HealthRepository struct {
	db *sql.DB
}

func NewHealthRepository(db *sql.DB) *HealthRepository {
	return &HealthRepository{db: db}
}

func (r *HealthRepository) Record(ctx context.Context, results []domain.ServiceHealth) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapConnErr("begin health tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, h := range results {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO system_health (service_name, status, latency_ms, error_message, checked_at)
VALUES ($1,$2,$3,$4,$5)
`, h.Service, string(h.Status), h.LatencyMS, h.Error, h.CheckedAt); err != nil {
			return wrapConnErr("insert health", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapConnErr("commit health tx", err)
	}
	return nil
}

// Latest returns the most recent result per service.
func (r *HealthRepository) Latest(ctx context.Context) ([]domain.ServiceHealth, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT ON (service_name) service_name, status, latency_ms, error_message, checked_at
FROM system_health
ORDER BY service_name, checked_at DESC
`)
	if err != nil {
		return nil, wrapConnErr("latest health", err)
	}
	defer rows.Close()

	out := make([]domain.ServiceHealth, 0)
	for rows.Next() {
		var h domain.ServiceHealth
		var status string
		if err := rows.Scan(&h.Service, &status, &h.LatencyMS, &h.Error, &h.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan health: %w", err)
		}
		h.Status = domain.HealthStatus(status)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate health: %w", err)
	}
	return out, nil
}
