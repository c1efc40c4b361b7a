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

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/corpus-rag/internal/bootstrap"
	"github.com/kirillkom/corpus-rag/internal/config"
	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/observability/logging"
	"github.com/kirillkom/corpus-rag/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.New(os.Stdout, serviceName, cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:      serviceName,
		ConnectQueue: true,
		Observer:     metrics.NewResilienceMetrics(workerMetrics.Registerer(), serviceName),
		OnJobHandled: func(job domain.IndexJob, err error, elapsed time.Duration) {
			workerMetrics.FinishDocument(elapsed, err)
		},
	})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metricsMux(workerMetrics.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	handle := func(handlerCtx context.Context, job domain.IndexJob) error {
		workerMetrics.StartDocument()
		workerMetrics.ObserveQueueLag(time.Since(job.DetectedAt))
		return app.Indexer.Index(handlerCtx, job)
	}

	// Each subscription in the queue group is delivered serially, so
	// concurrency comes from running several of them.
	slog.Info("worker_subscribed",
		"subject", cfg.NATSSubject,
		"queue_group", cfg.NATSQueueGroup,
		"concurrency", cfg.WorkerConcurrency,
	)
	g, gctx := errgroup.WithContext(ctx)
	for range cfg.WorkerConcurrency {
		g.Go(func() error {
			return app.Queue.SubscribeIndexJobs(gctx, handle)
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

func metricsMux(metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
