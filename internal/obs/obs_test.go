package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestRequestLoggerWritesRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "info")

	r := chi.NewRouter()
	r.Use(RequestLogger{Logger: logger}.Middleware)
	r.Get("/sales/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales/sale-1", nil))

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["route"] != "/sales/{id}" {
		t.Fatalf("expected route pattern, got %v", entry["route"])
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Fatalf("expected status 418, got %v", entry["status"])
	}
	if entry["service"] != "pos" {
		t.Fatalf("expected service field, got %v", entry["service"])
	}
}

func TestNewLoggerLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "bogus")
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level fallback, got %s", logger.GetLevel())
	}
	logger.Debug().Msg("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("debug line should be filtered")
	}
}

func TestHTTPMetricsMiddlewareCountsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics("pos_test", reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/products/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 2; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/products/p-1", nil))
	}

	got := testutil.ToFloat64(m.ReqTotal.WithLabelValues(http.MethodGet, "/products/{id}", "404"))
	if got != 2 {
		t.Fatalf("expected 2 requests counted, got %v", got)
	}
	if testutil.ToFloat64(m.InFlight) != 0 {
		t.Fatalf("expected no in-flight requests")
	}
}

func TestDomainMetricsReuseRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewDomainMetrics("pos_test", reg)
	second := NewDomainMetrics("pos_test", reg)

	first.SaleCompleted("cash", 1239)
	second.SaleCompleted("cash", 100)

	if got := testutil.ToFloat64(first.SalesTotal.WithLabelValues("cash")); got != 2 {
		t.Fatalf("expected shared counter, got %v", got)
	}
	if got := testutil.ToFloat64(first.SalesAmount.WithLabelValues("cash")); got != 1339 {
		t.Fatalf("expected amount 1339, got %v", got)
	}

	var nilMetrics *DomainMetrics
	nilMetrics.SaleCompleted("cash", 1)
	nilMetrics.DrawerClosed(-5)
}
