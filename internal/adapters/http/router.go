package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/corpus-rag/internal/config"
	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/core/ports"
	"github.com/kirillkom/corpus-rag/internal/observability/metrics"
)

const (
	genericQueryError = "chat request failed"
	maxRequestBody    = 1 << 20
)

type Router struct {
	queryUC   ports.QueryService
	history   ports.HistoryReader
	catalog   ports.DocumentCatalog
	readiness ports.ReadinessChecker
	metrics   *metrics.HTTPServerMetrics

	requestTimeout time.Duration
	maxConcurrent  int
	queueWait      time.Duration
	rateLimitRPS   float64
	rateLimitBurst int
}

func NewRouter(
	cfg config.Config,
	queryUC ports.QueryService,
	history ports.HistoryReader,
	catalog ports.DocumentCatalog,
	readiness ports.ReadinessChecker,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		queryUC:        queryUC,
		history:        history,
		catalog:        catalog,
		readiness:      readiness,
		metrics:        httpMetrics,
		requestTimeout: cfg.RequestTimeout,
		maxConcurrent:  cfg.MaxConcurrentRequests,
		queueWait:      cfg.QueueWaitTimeout,
		rateLimitRPS:   cfg.RateLimitRPS,
		rateLimitBurst: cfg.RateLimitBurst,
	}
}

// Handler assembles the route table. The OpenAPI validator and backpressure
// gate only wrap the /v1 routes; probes and metrics stay reachable under load.
func (rt *Router) Handler() (http.Handler, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /v1/chat", rt.chat)
	api.HandleFunc("POST /v1/chat/search", rt.search)
	api.HandleFunc("GET /v1/chat/history", rt.chatHistory)
	api.HandleFunc("GET /v1/documents", rt.listDocuments)

	var v1 http.Handler = validator.middleware(api)
	v1 = backpressureMiddleware(v1, rt.maxConcurrent, rt.queueWait, rt.recordRejected)
	v1 = rateLimitMiddleware(v1, rt.rateLimitRPS, rt.rateLimitBurst, rt.recordRejected)

	mux := http.NewServeMux()
	mux.Handle("/v1/", v1)
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /readyz", rt.readyz)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPI)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler)), nil
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, r *http.Request) {
	if rt.readiness == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	results := rt.readiness.Ready(r.Context())
	code, state := http.StatusOK, "ok"
	for _, res := range results {
		if res.Status == domain.HealthUp {
			continue
		}
		if !degradableServices[res.Service] {
			code, state = http.StatusServiceUnavailable, "unavailable"
			break
		}
		state = "degraded"
	}
	writeJSON(w, code, map[string]any{"status": state, "services": results})
}

// degradableServices may be down while the API stays ready: search and
// listing do not need them, and reranking falls back to vector order.
var degradableServices = map[string]bool{
	"ocr":        true,
	"generation": true,
	"reranker":   true,
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPISpec)
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		rt.writeQueryError(w, r, err)
		return
	}
	var req domain.AskRequest
	if err := decodeJSONBody(r, &req); err != nil {
		rt.writeQueryError(w, r, err)
		return
	}

	ctx, cancel := rt.withRequestTimeout(r.Context())
	defer cancel()

	started := time.Now()
	answer, err := rt.queryUC.Ask(ctx, principal, req, clientInfo(r))
	rt.observe("chat", answer, nil, time.Since(started), err)
	if err != nil {
		rt.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchResponse struct {
	Documents  []domain.Source `json:"documents"`
	TotalFound int             `json:"total_found"`
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		rt.writeQueryError(w, r, err)
		return
	}
	var req searchRequest
	if err := decodeJSONBody(r, &req); err != nil {
		rt.writeQueryError(w, r, err)
		return
	}

	ctx, cancel := rt.withRequestTimeout(r.Context())
	defer cancel()

	started := time.Now()
	chunks, err := rt.queryUC.Search(ctx, principal, req.Query, req.TopK, clientInfo(r))
	rt.observe("search", nil, chunks, time.Since(started), err)
	if err != nil {
		rt.writeQueryError(w, r, err)
		return
	}

	docs := make([]domain.Source, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, domain.Source{
			DocumentID:  c.DocumentID,
			ChunkIndex:  c.ChunkIndex,
			Filename:    c.Filename,
			Score:       c.Score,
			RerankScore: c.RerankScore,
			Content:     c.Content,
		})
	}
	writeJSON(w, http.StatusOK, searchResponse{Documents: docs, TotalFound: len(docs)})
}

func (rt *Router) chatHistory(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		rt.writeQueryError(w, r, err)
		return
	}
	var limit int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid parameter limit")
		return
	}

	records, err := rt.history.History(r.Context(), principal, limit)
	if err != nil {
		rt.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": records})
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromRequest(r)
	if err != nil {
		rt.writeQueryError(w, r, err)
		return
	}
	var (
		status string
		limit  int
		offset int
	)
	query := r.URL.Query()
	for name, dest := range map[string]any{"status": &status, "limit": &limit, "offset": &offset} {
		if err := runtime.BindQueryParameter("form", true, false, name, query, dest); err != nil {
			writeError(w, http.StatusBadRequest, "invalid parameter "+name)
			return
		}
	}

	docs, err := rt.catalog.ListDocuments(r.Context(), principal, domain.DocumentFilter{
		Status: domain.DocumentStatus(status),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		code := mapErrorToHTTPStatus(err)
		if code >= http.StatusInternalServerError {
			slog.Error("list_documents_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
			writeError(w, code, "list documents failed")
			return
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

func (rt *Router) withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if rt.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, rt.requestTimeout)
}

func (rt *Router) observe(endpoint string, answer *domain.Answer, chunks []domain.RetrievedChunk, elapsed time.Duration, err error) {
	if rt.metrics == nil {
		return
	}
	sources := len(chunks)
	if answer != nil {
		sources = len(answer.Sources)
		rt.metrics.RecordTokenUsage(endpoint, answer.Model, answer.TokenCount)
	}
	rt.metrics.RecordRAGObservation(endpoint, sources, elapsed, err)
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(reason)
	}
}

// writeQueryError hides internal failure text from callers; it is logged
// with the request id instead.
func (rt *Router) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	code := mapErrorToHTTPStatus(err)
	switch code {
	case http.StatusBadRequest:
		writeError(w, code, err.Error())
	case http.StatusUnauthorized:
		writeError(w, code, "unauthorized")
	default:
		slog.Error("chat_request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", code,
			"error", err,
		)
		writeError(w, code, genericQueryError)
	}
}

func decodeJSONBody(r *http.Request, dest any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := decoder.Decode(dest); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("invalid json"))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
