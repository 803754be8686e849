package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	PrometheusPath string `mapstructure:"prometheus_path"`
}

// DefaultMetricsConfig returns default metrics configuration
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:        true,
		ServiceName:    "arcana-ssr",
		PrometheusPath: "/metrics",
	}
}

// MetricsProvider exposes the render pipeline's Prometheus metrics: HTTP
// request counts/latency, package cache hit/miss, fetch outcomes and the
// number of render requests currently in flight.
type MetricsProvider struct {
	config   *MetricsConfig
	logger   *zap.Logger
	registry *prometheus.Registry
	handler  http.Handler

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
	fetchTotal          *prometheus.CounterVec
	fetchDuration       *prometheus.HistogramVec
	pendingRenders      prometheus.Gauge
	cacheSizeBytes      prometheus.Gauge
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(config *MetricsConfig, logger *zap.Logger) (*MetricsProvider, error) {
	mp := &MetricsProvider{config: config, logger: logger}

	if !config.Enabled {
		return mp, nil
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	mp.registry = registry
	mp.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	mp.httpRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	mp.httpRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name: "http_request_duration_seconds",
		Help: "HTTP request duration in seconds",
	}, []string{"method", "route"})

	mp.cacheHits = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "package_cache_hits_total",
		Help: "Total number of package cache hits",
	}, []string{"cache"})

	mp.cacheMisses = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "package_cache_misses_total",
		Help: "Total number of package cache misses",
	}, []string{"cache"})

	mp.fetchTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "package_fetch_total",
		Help: "Total number of package fetch attempts",
	}, []string{"outcome"})

	mp.fetchDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name: "package_fetch_duration_seconds",
		Help: "Package fetch duration in seconds",
	}, []string{"outcome"})

	mp.pendingRenders = factory.NewGauge(prometheus.GaugeOpts{
		Name: "render_requests_in_flight",
		Help: "Number of render requests currently being processed",
	})

	mp.cacheSizeBytes = factory.NewGauge(prometheus.GaugeOpts{
		Name: "package_cache_size_bytes",
		Help: "Total size in bytes of the package cache's currently held entries",
	})

	logger.Info("metrics initialized",
		zap.String("service", config.ServiceName),
		zap.String("prometheus_path", config.PrometheusPath),
	)

	return mp, nil
}

// RecordHTTPRequest records an HTTP request metric
func (mp *MetricsProvider) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	if mp.httpRequestsTotal == nil {
		return
	}
	status := http.StatusText(statusCode)
	mp.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	mp.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordCacheHit records a package cache hit
func (mp *MetricsProvider) RecordCacheHit(cacheName string) {
	if mp.cacheHits == nil {
		return
	}
	mp.cacheHits.WithLabelValues(cacheName).Inc()
}

// RecordCacheMiss records a package cache miss
func (mp *MetricsProvider) RecordCacheMiss(cacheName string) {
	if mp.cacheMisses == nil {
		return
	}
	mp.cacheMisses.WithLabelValues(cacheName).Inc()
}

// RecordFetch records the outcome of a package fetch attempt
func (mp *MetricsProvider) RecordFetch(outcome string, duration time.Duration) {
	if mp.fetchTotal == nil {
		return
	}
	mp.fetchTotal.WithLabelValues(outcome).Inc()
	mp.fetchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// SetPendingRenders sets the current number of in-flight render requests
func (mp *MetricsProvider) SetPendingRenders(n int) {
	if mp.pendingRenders == nil {
		return
	}
	mp.pendingRenders.Set(float64(n))
}

// SetCacheSizeBytes reports the package cache's total held content size.
func (mp *MetricsProvider) SetCacheSizeBytes(n int) {
	if mp.cacheSizeBytes == nil {
		return
	}
	mp.cacheSizeBytes.Set(float64(n))
}

// Handler returns an HTTP handler for Prometheus metrics
func (mp *MetricsProvider) Handler() http.Handler {
	if mp.handler != nil {
		return mp.handler
	}
	return http.NotFoundHandler()
}

// Shutdown is a no-op kept for symmetry with other providers' lifecycle hooks
func (mp *MetricsProvider) Shutdown() error {
	return nil
}
