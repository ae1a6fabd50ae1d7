package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PolicyCounter reports how many policies are stored
type PolicyCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Metrics holds the HTTP and store collectors
type Metrics struct {
	// Latency per route
	RequestDuration *prometheus.HistogramVec

	// Traffic per route and status
	TotalRequests *prometheus.CounterVec
}

// NewMetrics registers collectors on reg. A nil reg gets a private registry.
// When counter is set, a policies gauge is sampled from it on every scrape.
func NewMetrics(reg prometheus.Registerer, counter PolicyCounter) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "policyd_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		TotalRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "policyd_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
	}

	if counter != nil {
		promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
			Name: "policyd_policies",
			Help: "Number of stored policies.",
		}, func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			n, err := counter.Count(ctx)
			if err != nil {
				return -1
			}
			return float64(n)
		})
	}

	return m
}

// Middleware records request count and latency by route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.TotalRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}
