package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/corpus-rag/internal/bootstrap"
	"github.com/kirillkom/corpus-rag/internal/config"
	"github.com/kirillkom/corpus-rag/internal/observability/logging"
	"github.com/kirillkom/corpus-rag/internal/observability/metrics"
)

const serviceName = "scheduler"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.New(os.Stdout, serviceName, cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schedulerMetrics := metrics.NewSchedulerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:      serviceName,
		ConnectQueue: true,
		Observer:     metrics.NewResilienceMetrics(schedulerMetrics.Registerer(), serviceName),
	})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	c, err := newCron(&jobs{
		ctx:      ctx,
		sync:     app.Sync,
		health:   app.Health,
		recorder: schedulerMetrics,
	}, cfg.SyncSchedule, cfg.HealthSchedule)
	if err != nil {
		log.Fatalf("scheduler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", schedulerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.SchedulerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("scheduler_metrics_server_failed", "error", err)
		}
	}()

	c.Start()
	slog.Info("scheduler_started", "sync_schedule", cfg.SyncSchedule, "health_schedule", cfg.HealthSchedule)

	<-ctx.Done()
	// Running jobs see the cancelled ctx; wait for them to return.
	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
