// Package metrics provides Prometheus instrumentation for the decision core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// IncidentsTotal counts pipeline runs, partitioned by final status.
	IncidentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xligo_incidents_total",
		Help: "Total incidents processed by the decision pipeline",
	}, []string{"status"})

	// AssessmentDuration tracks risk assessment latency.
	AssessmentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "xligo_assessment_duration_seconds",
		Help:    "Risk assessment latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// OptimizationDuration tracks plan optimization latency.
	OptimizationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "xligo_optimization_duration_seconds",
		Help:    "Plan optimization latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// FallbacksTotal counts degraded results, partitioned by stage.
	FallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xligo_fallbacks_total",
		Help: "Stage results that fell back to conservative defaults",
	}, []string{"stage"})

	// PolicyViolationsTotal counts policy violations, partitioned by rule.
	PolicyViolationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xligo_policy_violations_total",
		Help: "Policy violations raised during plan validation",
	}, []string{"rule"})

	// PlansExecutedTotal counts plans handed to the executor.
	PlansExecutedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xligo_plans_executed_total",
		Help: "Approved plans handed off for execution",
	})

	// PriceTicksTotal counts oracle price ticks, partitioned by asset.
	PriceTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xligo_price_ticks_total",
		Help: "Oracle price ticks recorded",
	}, []string{"asset"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xligo_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xligo_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
