package domain

import "time"

type HealthStatus string

const (
	HealthUp   HealthStatus = "healthy"
	HealthDown HealthStatus = "unhealthy"
)

type ServiceHealth struct {
	Service   string        `json:"service_name"`
	Status    HealthStatus  `json:"status"`
	Latency   time.Duration `json:"-"`
	LatencyMS float64       `json:"response_time_ms"`
	Error     string        `json:"error,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

type ReconcileReport struct {
	DocumentsChecked int      `json:"documents_checked"`
	OrphanPoints     int      `json:"orphan_points_deleted"`
	MissingPoints    int      `json:"missing_points"`
	DocumentsFailed  []int64  `json:"documents_marked_failed,omitempty"`
	Errors           []string `json:"errors,omitempty"`
}
