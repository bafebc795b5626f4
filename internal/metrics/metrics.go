package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/digkill/TGContentBot/internal/llm"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	generations     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contentbot_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "contentbot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		}, []string{"route", "method"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contentbot_llm_provider_calls_total",
			Help: "LLM provider rotations by provider, mode and outcome",
		}, []string{"provider", "mode", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "contentbot_llm_provider_duration_seconds",
			Help:    "Time spent on one provider including key rotation",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 90, 180},
		}, []string{"provider", "mode"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contentbot_generations_total",
			Help: "Generation requests by kind and result",
		}, []string{"kind", "result"}),
	}
	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.providerCalls,
		m.providerLatency,
		m.generations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveProvider implements llm.Recorder.
func (m *Metrics) ObserveProvider(provider string, mode llm.Mode, outcome string, elapsed time.Duration) {
	m.providerCalls.WithLabelValues(provider, string(mode), outcome).Inc()
	m.providerLatency.WithLabelValues(provider, string(mode)).Observe(elapsed.Seconds())
}

// ObserveGeneration counts a finished generation: ok, fallback, limit, failed.
func (m *Metrics) ObserveGeneration(kind, result string) {
	m.generations.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records per-route request counts and latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
