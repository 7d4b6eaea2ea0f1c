package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddlewareRecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/shows/{showID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/shows/{showID}", "404"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shows/abc", nil))

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/shows/{showID}", "404"))
	if after-before != 1 {
		t.Fatalf("expected request counted once under the route pattern, got delta %v", after-before)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	ShowsStartedTotal.Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tokencast_shows_started_total") {
		t.Fatal("expected tokencast metrics in output")
	}
}

func TestTracingMiddlewarePassesThrough(t *testing.T) {
	h := TracingMiddleware("tokencast-test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected handler status to pass through, got %d", rec.Code)
	}
}
