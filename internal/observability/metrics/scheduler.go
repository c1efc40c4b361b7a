package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

// SchedulerMetrics covers the periodic sync and health probe jobs.
type SchedulerMetrics struct {
	registry *prometheus.Registry
	service  string

	syncRunsTotal  *prometheus.CounterVec
	syncFilesTotal *prometheus.CounterVec
	syncDuration   prometheus.Histogram
	serviceUp      *prometheus.GaugeVec
	serviceLatency *prometheus.GaugeVec
}

func NewSchedulerMetrics(service string) *SchedulerMetrics {
	registry := prometheus.NewRegistry()

	syncRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Corpus sync runs by outcome.",
		},
		[]string{"service", "outcome"},
	)
	syncFilesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "files_total",
			Help:      "Files seen by corpus sync, by outcome.",
		},
		[]string{"service", "outcome"},
	)
	syncDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "sync",
			Name:        "duration_seconds",
			Help:        "Corpus sync duration in seconds.",
			Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 900, 1800, 3600},
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	serviceUp := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "service_up",
			Help:      "Last probe result per dependency (1 healthy, 0 unhealthy).",
		},
		[]string{"service", "dependency"},
	)
	serviceLatency := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "probe_latency_seconds",
			Help:      "Last probe latency per dependency.",
		},
		[]string{"service", "dependency"},
	)

	registry.MustRegister(syncRunsTotal, syncFilesTotal, syncDuration, serviceUp, serviceLatency)

	return &SchedulerMetrics{
		registry:       registry,
		service:        service,
		syncRunsTotal:  syncRunsTotal,
		syncFilesTotal: syncFilesTotal,
		syncDuration:   syncDuration,
		serviceUp:      serviceUp,
		serviceLatency: serviceLatency,
	}
}

func (m *SchedulerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *SchedulerMetrics) Registerer() prometheus.Registerer {
	return m.registry
}

func (m *SchedulerMetrics) RecordSync(report domain.ScanReport, err error) {
	if err != nil {
		m.syncRunsTotal.WithLabelValues(m.service, "error").Inc()
		return
	}
	m.syncRunsTotal.WithLabelValues(m.service, "success").Inc()
	m.syncDuration.Observe(report.Duration.Seconds())

	for outcome, n := range map[string]int{
		"added":     report.Added,
		"modified":  report.Modified,
		"unchanged": report.Unchanged,
		"duplicate": report.Duplicate,
		"rejected":  report.Rejected,
		"failed":    report.Failed,
		"queued":    report.Queued,
	} {
		if n > 0 {
			m.syncFilesTotal.WithLabelValues(m.service, outcome).Add(float64(n))
		}
	}
}

func (m *SchedulerMetrics) RecordHealth(results []domain.ServiceHealth) {
	for _, r := range results {
		up := 0.0
		if r.Status == domain.HealthUp {
			up = 1
		}
		m.serviceUp.WithLabelValues(m.service, r.Service).Set(up)
		m.serviceLatency.WithLabelValues(m.service, r.Service).Set(r.Latency.Seconds())
	}
}
