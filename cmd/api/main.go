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

	httpadapter "github.com/kirillkom/corpus-rag/internal/adapters/http"
	"github.com/kirillkom/corpus-rag/internal/bootstrap"
	"github.com/kirillkom/corpus-rag/internal/config"
	"github.com/kirillkom/corpus-rag/internal/observability/logging"
	"github.com/kirillkom/corpus-rag/internal/observability/metrics"
)

const serviceName = "api"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.New(os.Stdout, serviceName, cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:          serviceName,
		Observer:         metrics.NewResilienceMetrics(httpMetrics.Registerer(), serviceName),
		OnRerankFallback: httpMetrics.RecordRerankFallback,
		OnAuditDrop:      httpMetrics.RecordAuditDrop,
	})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	router, err := httpadapter.NewRouter(cfg, app.Answers, app.Answers, app.Catalog, app.Health, httpMetrics).Handler()
	if err != nil {
		log.Fatalf("router error: %v", err)
	}
	// Chat requests may legitimately run for RequestTimeout; the write
	// deadline leaves room for the error response after it fires.
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
