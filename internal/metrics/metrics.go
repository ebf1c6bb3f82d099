package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the pool, the bridge and the
// HTTP transport. All methods are safe on a nil receiver, which disables
// recording.
type Metrics struct {
	// Job metrics
	jobsTotal       *prometheus.CounterVec
	jobsRejected    *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobQueueWait    prometheus.Histogram
	detachedResults prometheus.Counter

	// Worker metrics
	workersBusy   prometheus.Gauge
	workersLive   prometheus.Gauge
	contextResets *prometheus.CounterVec

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "winter_jobs_total",
				Help: "Total number of script executions by outcome",
			},
			[]string{"outcome"},
		),

		jobsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "winter_jobs_rejected_total",
				Help: "Total number of jobs refused at admission",
			},
			[]string{"reason"},
		),

		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "winter_job_duration_seconds",
				Help:    "Script execution time in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),

		jobQueueWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "winter_job_queue_wait_seconds",
				Help:    "Time a job spent in the intake queue before a worker picked it up",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),

		detachedResults: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "winter_detached_results_total",
				Help: "Results produced after the caller had gone away",
			},
		),

		workersBusy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "winter_workers_busy",
				Help: "Number of workers currently executing a script",
			},
		),

		workersLive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "winter_workers_live",
				Help: "Number of workers able to accept jobs",
			},
		),

		contextResets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "winter_context_resets_total",
				Help: "Script contexts discarded after a fault, by error kind",
			},
			[]string{"kind"},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "winter_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "winter_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobsRejected,
		m.jobDuration,
		m.jobQueueWait,
		m.detachedResults,
		m.workersBusy,
		m.workersLive,
		m.contextResets,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordJob records a finished execution.
func (m *Metrics) RecordJob(outcome string, duration, queueWait time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(outcome).Inc()
	m.jobDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.jobQueueWait.Observe(queueWait.Seconds())
}

// RecordRejected records a job refused at admission.
func (m *Metrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.jobsRejected.WithLabelValues(reason).Inc()
}

// RecordDetached records a result nobody was waiting for.
func (m *Metrics) RecordDetached() {
	if m == nil {
		return
	}
	m.detachedResults.Inc()
}

// AddBusy adjusts the busy worker gauge.
func (m *Metrics) AddBusy(delta int) {
	if m == nil {
		return
	}
	m.workersBusy.Add(float64(delta))
}

// SetLive sets the live worker gauge.
func (m *Metrics) SetLive(n int) {
	if m == nil {
		return
	}
	m.workersLive.Set(float64(n))
}

// RecordContextReset records a discarded context.
func (m *Metrics) RecordContextReset(kind string) {
	if m == nil {
		return
	}
	m.contextResets.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request counts and latency for next.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		m.RecordHTTPRequest(r.Method, wrapped.statusCode, time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
