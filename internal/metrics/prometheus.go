package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// PrometheusExporter exposes load generator metrics for scraping.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type PrometheusExporter struct {
	mu sync.RWMutex

	config   PrometheusExporterConfig
	registry *prometheus.Registry

	requestsTotal          *prometheus.CounterVec
	requestDurationSeconds *prometheus.HistogramVec
	responseBytesTotal     prometheus.Counter
	activeUsers            *prometheus.GaugeVec
	successRate            prometheus.Gauge
	currentQPS             prometheus.Gauge

	server *http.Server
	ln     net.Listener

	running   bool
	lastError error
}

// PrometheusExporterConfig holds configuration for the Prometheus exporter.
type PrometheusExporterConfig struct {
	// Port is the HTTP port for the metrics endpoint. Zero picks the default;
	// use Addr to bind an ephemeral port in tests.
	// Default: 9090
	Port int

	// Addr overrides Port when set, e.g. "127.0.0.1:0".
	Addr string

	// Path is the URL path for the metrics endpoint.
	// Default: /metrics
	Path string

	// Namespace is the prefix for all metrics.
	// Default: "loadgen"
	Namespace string

	// HistogramBuckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	HistogramBuckets []float64
}

// DefaultPrometheusExporterConfig returns default configuration.
func DefaultPrometheusExporterConfig() PrometheusExporterConfig {
	return PrometheusExporterConfig{
		Port:             9090,
		Path:             "/metrics",
		Namespace:        "loadgen",
		HistogramBuckets: prometheus.DefBuckets,
	}
}

// NewPrometheusExporter creates a new Prometheus exporter.
func NewPrometheusExporter(config PrometheusExporterConfig) *PrometheusExporter {
	defaults := DefaultPrometheusExporterConfig()
	if config.Port == 0 {
		config.Port = defaults.Port
	}
	if config.Path == "" {
		config.Path = defaults.Path
	}
	if config.Namespace == "" {
		config.Namespace = defaults.Namespace
	}
	if len(config.HistogramBuckets) == 0 {
		config.HistogramBuckets = defaults.HistogramBuckets
	}

	e := &PrometheusExporter{
		config:   config,
		registry: prometheus.NewRegistry(),
	}
	e.initMetrics()
	return e
}

func (e *PrometheusExporter) initMetrics() {
	ns := e.config.Namespace

	e.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "requests_total",
			Help:      "HTTP requests issued by virtual users, by request name, status and verdict.",
		},
		[]string{"name", "method", "status", "verdict"},
	)

	e.requestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   e.config.HistogramBuckets,
		},
		[]string{"name"},
	)

	e.responseBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "response_bytes_total",
			Help:      "Total response bytes received.",
		},
	)

	e.activeUsers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "active_users",
			Help:      "Running virtual users by profile.",
		},
		[]string{"profile"},
	)

	e.successRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "success_rate",
			Help:      "Request success rate (0.0-100.0), expected outcomes included.",
		},
	)

	e.currentQPS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "current_qps",
			Help:      "Average requests per second since start.",
		},
	)

	e.registry.MustRegister(
		e.requestsTotal,
		e.requestDurationSeconds,
		e.responseBytesTotal,
		e.activeUsers,
		e.successRate,
		e.currentQPS,
	)
}

// Start starts the HTTP server for the metrics endpoint.
func (e *PrometheusExporter) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	addr := e.config.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", e.config.Port)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("starting Prometheus exporter: %w", err)
	}
	e.ln = ln

	mux := http.NewServeMux()
	mux.Handle(e.config.Path, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.mu.Lock()
			e.lastError = err
			e.mu.Unlock()
		}
	}()

	e.running = true
	return nil
}

// Stop stops the HTTP server.
func (e *PrometheusExporter) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	e.running = false

	if e.server != nil {
		return e.server.Shutdown(ctx)
	}
	return nil
}

// Record implements Recorder.
func (e *PrometheusExporter) Record(result Result) {
	status := "error"
	if result.StatusCode > 0 {
		status = strconv.Itoa(result.StatusCode)
	}
	e.requestsTotal.WithLabelValues(result.Name, result.Method, status, result.Verdict.String()).Inc()
	e.requestDurationSeconds.WithLabelValues(result.Name).Observe(result.Latency.Seconds())
	e.responseBytesTotal.Add(float64(result.ResponseSize))
}

// UserStarted increments the active user gauge for profile.
func (e *PrometheusExporter) UserStarted(profile string) {
	e.activeUsers.WithLabelValues(profile).Inc()
}

// UserStopped decrements the active user gauge for profile.
func (e *PrometheusExporter) UserStopped(profile string) {
	e.activeUsers.WithLabelValues(profile).Dec()
}

// UpdateFromSnapshot updates derived gauges from a collector snapshot.
func (e *PrometheusExporter) UpdateFromSnapshot(snapshot Snapshot) {
	e.currentQPS.Set(snapshot.QPS)
	e.successRate.Set(snapshot.SuccessRate)
}

// Address returns the bound listen address, or the configured one before Start.
func (e *PrometheusExporter) Address() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.ln != nil {
		return e.ln.Addr().String()
	}
	if e.config.Addr != "" {
		return e.config.Addr
	}
	return fmt.Sprintf(":%d", e.config.Port)
}

// Path returns the configured metrics path.
func (e *PrometheusExporter) Path() string {
	return e.config.Path
}

// IsRunning returns whether the exporter is running.
func (e *PrometheusExporter) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// LastError returns the last error from the HTTP server, if any.
func (e *PrometheusExporter) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastError
}

// Gather collects all metrics from the registry.
func (e *PrometheusExporter) Gather() ([]*dto.MetricFamily, error) {
	return e.registry.Gather()
}
