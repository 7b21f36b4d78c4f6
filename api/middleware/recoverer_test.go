package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/angelmondragon/dukalink-backend/pkg/metrics"
)

func TestRecovererWritesInternalEnvelope(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTPMetrics(reg)

	handler := Recoverer(nil, m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "INTERNAL_ERROR") {
		t.Fatalf("expected internal error envelope, got %s", resp.Body.String())
	}
	if strings.Contains(resp.Body.String(), "boom") {
		t.Fatalf("panic value leaked to client: %s", resp.Body.String())
	}
	count, err := testutil.GatherAndCount(reg, "dukalink_http_panics_total")
	if err != nil || count != 1 {
		t.Fatalf("expected panic counter series, count=%d err=%v", count, err)
	}
}

func TestRecovererReraisesAbort(t *testing.T) {
	handler := Recoverer(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if recover() != http.ErrAbortHandler {
			t.Fatal("expected ErrAbortHandler to propagate")
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/orders/{orderId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/123", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/456", nil))

	expected := `
# HELP dukalink_http_requests_total HTTP requests by method, route pattern and status code.
# TYPE dukalink_http_requests_total counter
dukalink_http_requests_total{method="GET",route="/orders/{orderId}",status="202"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "dukalink_http_requests_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}
