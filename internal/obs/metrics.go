package obs

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics groups Prometheus collectors for HTTP observability.
type HTTPMetrics struct {
	ReqTotal *prometheus.CounterVec
	ReqDur   *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

func NewHTTPMetrics(namespace string, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &HTTPMetrics{
		ReqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the server.",
		}, []string{"method", "route", "status"}),
		ReqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency distribution in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"method", "route"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
	}
	m.ReqTotal = register(reg, m.ReqTotal)
	m.ReqDur = register(reg, m.ReqDur)
	m.InFlight = register(reg, m.InFlight)
	return m
}

// Middleware instruments request/response lifecycle with counters and histograms.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := NewStatusRecorder(w)
		m.InFlight.Inc()
		start := time.Now()
		next.ServeHTTP(recorder, r)
		m.InFlight.Dec()

		route := routePattern(r)
		m.ReqTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.Status())).Inc()
		m.ReqDur.WithLabelValues(r.Method, route).Observe(float64(time.Since(start)) / float64(time.Millisecond))
	})
}

// DomainMetrics counts business events. A nil *DomainMetrics records nothing.
type DomainMetrics struct {
	SalesTotal       *prometheus.CounterVec
	SalesAmount      *prometheus.CounterVec
	ReturnsTotal     prometheus.Counter
	RefundAmount     prometheus.Counter
	PayrollFinalized prometheus.Counter
	DrawerVariance   prometheus.Histogram
}

func NewDomainMetrics(namespace string, reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &DomainMetrics{
		SalesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_completed_total",
			Help:      "Completed sales by payment method.",
		}, []string{"payment_method"}),
		SalesAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_amount_cents_total",
			Help:      "Sum of completed sale totals in cents by payment method.",
		}, []string{"payment_method"}),
		ReturnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "returns_processed_total",
			Help:      "Processed sale returns.",
		}),
		RefundAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refund_amount_cents_total",
			Help:      "Sum of refunds in cents.",
		}),
		PayrollFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payroll_runs_finalized_total",
			Help:      "Finalized payroll runs.",
		}),
		DrawerVariance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drawer_close_variance_cents",
			Help:      "Counted minus expected cash at drawer close, in cents.",
			Buckets:   []float64{-5000, -1000, -100, -1, 0, 1, 100, 1000, 5000},
		}),
	}
	m.SalesTotal = register(reg, m.SalesTotal)
	m.SalesAmount = register(reg, m.SalesAmount)
	m.ReturnsTotal = register(reg, m.ReturnsTotal)
	m.RefundAmount = register(reg, m.RefundAmount)
	m.PayrollFinalized = register(reg, m.PayrollFinalized)
	m.DrawerVariance = register(reg, m.DrawerVariance)
	return m
}

func (m *DomainMetrics) SaleCompleted(method string, totalCents int64) {
	if m == nil {
		return
	}
	m.SalesTotal.WithLabelValues(method).Inc()
	m.SalesAmount.WithLabelValues(method).Add(float64(totalCents))
}

func (m *DomainMetrics) ReturnProcessed(refundCents int64) {
	if m == nil {
		return
	}
	m.ReturnsTotal.Inc()
	m.RefundAmount.Add(float64(refundCents))
}

func (m *DomainMetrics) PayrollRunFinalized() {
	if m == nil {
		return
	}
	m.PayrollFinalized.Inc()
}

func (m *DomainMetrics) DrawerClosed(varianceCents int64) {
	if m == nil {
		return
	}
	m.DrawerVariance.Observe(float64(varianceCents))
}

// register reuses an already registered collector of the same shape.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
	return c
}
