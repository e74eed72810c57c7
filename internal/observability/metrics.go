package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"atlas/internal/logging"
	"atlas/internal/server/ports"
)

// MetricsCollector manages all metrics for the agent server. All Record
// methods are safe to call on a disabled collector.
type MetricsCollector struct {
	meter metric.Meter

	// Task lifecycle metrics
	tasksCreated  metric.Int64Counter
	tasksFinished metric.Int64Counter
	taskDuration  metric.Float64Histogram
	tasksQueued   metric.Int64UpDownCounter

	// Generation backend metrics
	providerRequests metric.Int64Counter
	providerLatency  metric.Float64Histogram
	cacheLookups     metric.Int64Counter

	// HTTP metrics
	httpRequests metric.Int64Counter
	httpLatency  metric.Float64Histogram

	logger logging.Logger

	// Server for Prometheus scraping
	prometheusServer *http.Server
}

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled        bool
	PrometheusPort int
}

// NewMetricsCollector creates a metrics collector backed by the OpenTelemetry
// metric SDK with a Prometheus exporter. A disabled config yields a no-op
// collector.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	logger := logging.NewComponentLogger("Metrics")
	if !config.Enabled {
		return &MetricsCollector{logger: logger}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("atlas")

	tasksCreated, err := meter.Int64Counter(
		"atlas.tasks.created.total",
		metric.WithDescription("Total number of tasks created"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks_created counter: %w", err)
	}

	tasksFinished, err := meter.Int64Counter(
		"atlas.tasks.finished.total",
		metric.WithDescription("Total number of tasks that reached a terminal state"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks_finished counter: %w", err)
	}

	taskDuration, err := meter.Float64Histogram(
		"atlas.tasks.duration",
		metric.WithDescription("Task execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task_duration histogram: %w", err)
	}

	tasksQueued, err := meter.Int64UpDownCounter(
		"atlas.tasks.queued",
		metric.WithDescription("Number of tasks waiting for or holding an executor slot"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks_queued gauge: %w", err)
	}

	providerRequests, err := meter.Int64Counter(
		"atlas.provider.requests.total",
		metric.WithDescription("Total number of generation backend requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_requests counter: %w", err)
	}

	providerLatency, err := meter.Float64Histogram(
		"atlas.provider.latency",
		metric.WithDescription("Generation backend request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_latency histogram: %w", err)
	}

	cacheLookups, err := meter.Int64Counter(
		"atlas.provider.cache.lookups.total",
		metric.WithDescription("Total number of response cache lookups"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache_lookups counter: %w", err)
	}

	httpRequests, err := meter.Int64Counter(
		"atlas.http.requests.total",
		metric.WithDescription("Total number of HTTP requests served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests counter: %w", err)
	}

	httpLatency, err := meter.Float64Histogram(
		"atlas.http.latency",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_latency histogram: %w", err)
	}

	collector := &MetricsCollector{
		meter:            meter,
		tasksCreated:     tasksCreated,
		tasksFinished:    tasksFinished,
		taskDuration:     taskDuration,
		tasksQueued:      tasksQueued,
		providerRequests: providerRequests,
		providerLatency:  providerLatency,
		cacheLookups:     cacheLookups,
		httpRequests:     httpRequests,
		httpLatency:      httpLatency,
		logger:           logger,
	}

	if config.PrometheusPort > 0 {
		if err := collector.StartPrometheusServer(config.PrometheusPort); err != nil {
			return nil, fmt.Errorf("failed to start prometheus server: %w", err)
		}
	}

	return collector, nil
}

// StartPrometheusServer starts the Prometheus scrape endpoint on its own
// port, separate from the API listener.
func (m *MetricsCollector) StartPrometheusServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())

	m.prometheusServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		m.logger.Info("Prometheus metrics server listening on :%d", port)
		if err := m.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Prometheus server error: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the metrics collector.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m.prometheusServer != nil {
		return m.prometheusServer.Shutdown(ctx)
	}
	return nil
}

// RecordTaskCreated records a task entering the store.
func (m *MetricsCollector) RecordTaskCreated(ctx context.Context, skill ports.Skill) {
	if m == nil || m.tasksCreated == nil {
		return
	}
	m.tasksCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("skill", string(skill))))
}

// RecordTaskFinished records a task reaching a terminal state.
func (m *MetricsCollector) RecordTaskFinished(ctx context.Context, skill ports.Skill, status ports.TaskStatus, duration time.Duration) {
	if m == nil || m.tasksFinished == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("skill", string(skill)),
		attribute.String("status", string(status)),
	}
	m.tasksFinished.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.taskDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordQueueDepth adjusts the queued-task gauge.
func (m *MetricsCollector) RecordQueueDepth(ctx context.Context, delta int64) {
	if m == nil || m.tasksQueued == nil {
		return
	}
	m.tasksQueued.Add(ctx, delta)
}

// RecordProviderRequest records one generation backend round trip.
func (m *MetricsCollector) RecordProviderRequest(ctx context.Context, duration time.Duration, failed bool) {
	if m == nil || m.providerRequests == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.providerRequests.Add(ctx, 1, attrs)
	m.providerLatency.Record(ctx, duration.Seconds(), attrs)
}

// RecordCacheLookup records a response cache hit or miss.
func (m *MetricsCollector) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil || m.cacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordHTTPRequest records one served HTTP request.
func (m *MetricsCollector) RecordHTTPRequest(ctx context.Context, method, route string, status int, latency time.Duration, bytes int64) {
	if m == nil || m.httpRequests == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	}
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
}
