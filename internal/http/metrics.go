package httpx

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/KeightAI/infra-ai-forge/pkg/metrics"
)

// Trigger requests block for a whole pipeline, hence the long tail.
var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 30, 120, 600}

type routerMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	triggers *prometheus.CounterVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *routerMetrics
)

func newRouterMetrics() *routerMetrics {
	metricsOnce.Do(func() {
		labels := []string{"method", "route", "status"}
		sharedMetrics = &routerMetrics{
			requests: metrics.Register(prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "deployworker",
				Name:      "http_requests_total",
				Help:      "Count of processed HTTP requests",
			}, labels)),
			latency: metrics.Register(prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "deployworker",
				Name:      "http_request_duration_seconds",
				Help:      "Latency distribution of HTTP handlers",
				Buckets:   histogramBuckets,
			}, labels)),
			triggers: metrics.Register(prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "deployworker",
				Name:      "trigger_results_total",
				Help:      "Number of manual trigger outcomes",
			}, []string{"outcome"})),
		}
	})
	return sharedMetrics
}

func (m *routerMetrics) observe(method, route string, status int, elapsed time.Duration) {
	labels := prometheus.Labels{"method": method, "route": route, "status": strconv.Itoa(status)}
	m.requests.With(labels).Inc()
	m.latency.With(labels).Observe(elapsed.Seconds())
}

func (m *routerMetrics) trigger(outcome string) {
	m.triggers.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// instrument records the status and latency of every request to route.
func (r *Router) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(sw, req)
		r.metrics.observe(req.Method, route, sw.status, time.Since(start))
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
