package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/infrastructure/resilience"
)

func testPoints() []domain.VectorPoint {
	return []domain.VectorPoint{
		{ID: "p1", Vector: []float32{0.1, 0.2}, Payload: domain.PointPayload{DocumentID: 7, ChunkIndex: 0, Content: "a", DepartmentID: 5, RoleID: 2}},
		{ID: "p2", Vector: []float32{0.3, 0.4}, Payload: domain.PointPayload{DocumentID: 7, ChunkIndex: 1, Content: "b", DepartmentID: 5, RoleID: 2}},
	}
}

func TestUpsertEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls, indexCalls int32
	var upserted []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/index":
			atomic.AddInt32(&indexCalls, 1)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/points":
			var body struct {
				Points []map[string]any `json:"points"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode upsert: %v", err)
			}
			upserted = append(upserted, body.Points...)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, Options{Collection: "docs"})
	for i := 0; i < 2; i++ {
		if err := client.Upsert(context.Background(), testPoints()); err != nil {
			t.Fatalf("Upsert() #%d error = %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
	if got := atomic.LoadInt32(&indexCalls); got != 3 {
		t.Fatalf("expected 3 payload indexes, got %d", got)
	}
	if len(upserted) != 4 {
		t.Fatalf("expected 4 upserted points, got %d", len(upserted))
	}
	payload := upserted[0]["payload"].(map[string]any)
	if upserted[0]["id"] != "p1" || payload["department_id"] != float64(5) || payload["role_id"] != float64(2) || payload["document_id"] != float64(7) {
		t.Fatalf("unexpected point body: %+v", upserted[0])
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/docs" {
			http.Error(w, "boom", http.StatusBadRequest)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	err := New(server.URL, Options{Collection: "docs"}).Upsert(context.Background(), testPoints())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}

func TestSearchSendsAccessFilter(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/docs/points/search" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode search: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[{"id":"p1","score":0.82,"payload":{"document_id":7,"chunk_index":3,"filename":"leave.pdf","content":"text","department_id":5,"role_id":0}}]}`))
	}))
	defer server.Close()

	client := New(server.URL, Options{Collection: "docs"})
	filter := domain.NewAccessFilter(domain.Principal{DepartmentID: 5, RoleID: 2})
	got, err := client.Search(context.Background(), []float32{0.1}, 20, 0.3, filter)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].PointID != "p1" || got[0].DocumentID != 7 || got[0].ChunkIndex != 3 || got[0].DepartmentID != 5 || got[0].Filename != "leave.pdf" {
		t.Fatalf("unexpected chunks: %+v", got)
	}

	if captured["limit"] != float64(20) || captured["score_threshold"] != 0.3 {
		t.Fatalf("unexpected search body: %+v", captured)
	}
	raw, _ := json.Marshal(captured["filter"])
	want := `{"must":[{"should":[{"key":"department_id","match":{"value":5}},{"key":"department_id","match":{"value":0}}]},{"should":[{"key":"role_id","match":{"value":2}},{"key":"role_id","match":{"value":0}}]}]}`
	if string(raw) != want {
		t.Fatalf("filter = %s\nwant %s", raw, want)
	}
}

func TestSearchMissingCollectionReturnsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"error":"Not found: Collection docs doesn't exist!"}}`, http.StatusNotFound)
	}))
	defer server.Close()

	got, err := New(server.URL, Options{Collection: "docs"}).Search(context.Background(), []float32{1}, 5, 0, domain.AccessFilter{})
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v, %v", got, err)
	}
}

func TestPointIDsByDocumentFollowsPages(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if atomic.AddInt32(&calls, 1) == 1 {
			if _, ok := body["offset"]; ok {
				t.Errorf("first page must not send an offset")
			}
			_, _ = w.Write([]byte(`{"result":{"points":[{"id":"a"},{"id":"b"}],"next_page_offset":"c"}}`))
			return
		}
		if body["offset"] != "c" {
			t.Errorf("expected offset c, got %v", body["offset"])
		}
		_, _ = w.Write([]byte(`{"result":{"points":[{"id":"c"}],"next_page_offset":null}}`))
	}))
	defer server.Close()

	ids, err := New(server.URL, Options{Collection: "docs"}).PointIDsByDocument(context.Background(), 7)
	if err != nil {
		t.Fatalf("PointIDsByDocument() error = %v", err)
	}
	if strings.Join(ids, ",") != "a,b,c" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestDeleteRetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		var body struct {
			Points []string `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Points) != 2 {
			t.Errorf("unexpected delete body %+v", body)
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{Retry: resilience.RetryPolicy{MaxAttempts: 3, InitialBackoff: 1, MaxBackoff: 1}})
	client := New(server.URL, Options{Collection: "docs", Executor: executor})
	if err := client.Delete(context.Background(), []string{"p1", "p2"}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}
}

func TestUnavailableIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New(server.URL, Options{Collection: "docs"}).Search(context.Background(), []float32{1}, 5, 0, domain.AccessFilter{})
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}
