package observability

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	body := scrape(t, NewMetrics())
	for _, name := range []string{"gestionrh_live_connections", "go_goroutines"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected body to contain %s, got: %s", name, body)
		}
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `gestionrh_http_requests_total{code="418",route="/test"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `gestionrh_http_request_duration_seconds_bucket{route="/test"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestMetricsCountAPIErrorsAndLiveConnections(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveAPIError("NetworkError")
	metrics.ObserveAPIError("NetworkError")
	metrics.LiveConnections().Inc()

	body := scrape(t, metrics)
	if !strings.Contains(body, `gestionrh_api_errors_total{kind="NetworkError"} 2`) {
		t.Fatalf("expected api error counter, got: %s", body)
	}
	if !strings.Contains(body, "gestionrh_live_connections 1") {
		t.Fatalf("expected live gauge, got: %s", body)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveAPIError("ServerError")
	metrics.LiveConnections().Inc()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if metrics.Middleware(next) == nil {
		t.Fatal("expected passthrough handler")
	}
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestSetupTracingWithoutEndpointIsNoop(t *testing.T) {
	shutdown := SetupTracing(context.Background(), TracingConfig{ServiceName: "gestionrh-console"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
}
