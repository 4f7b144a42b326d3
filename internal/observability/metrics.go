package observability

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector owns every instrument recorded by the agent, the tool
// dispatcher and the kernel session manager. A zero value is a valid no-op
// collector, and so is a nil pointer.
type MetricsCollector struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider

	llmRequests     metric.Int64Counter
	llmTokensInput  metric.Int64Counter
	llmTokensOutput metric.Int64Counter
	llmLatency      metric.Float64Histogram

	toolExecutions metric.Int64Counter
	toolDuration   metric.Float64Histogram
	parseFailures  metric.Int64Counter
	agentRuns      metric.Int64Counter

	kernelExecutions metric.Int64Counter
	kernelDuration   metric.Float64Histogram
	sessionsActive   metric.Int64UpDownCounter

	prometheusServer *http.Server
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter("chemagent")

	collector := &MetricsCollector{meter: meter, provider: provider}
	b := instrumentBuilder{meter: meter}

	collector.llmRequests = b.counter("chemagent.llm.requests.total", "Total number of LLM requests", "{request}")
	collector.llmTokensInput = b.counter("chemagent.llm.tokens.input", "Estimated input tokens sent to the LLM", "{token}")
	collector.llmTokensOutput = b.counter("chemagent.llm.tokens.output", "Estimated output tokens from the LLM", "{token}")
	collector.llmLatency = b.histogram("chemagent.llm.latency", "LLM request latency in seconds")
	collector.toolExecutions = b.counter("chemagent.tool.executions.total", "Total number of tool dispatches", "{execution}")
	collector.toolDuration = b.histogram("chemagent.tool.duration", "Tool dispatch duration in seconds")
	collector.parseFailures = b.counter("chemagent.parse.failures.total", "Model outputs that could not be parsed into a command", "{failure}")
	collector.agentRuns = b.counter("chemagent.agent.runs.total", "Completed agent runs by outcome", "{run}")
	collector.kernelExecutions = b.counter("chemagent.kernel.executions.total", "Code executions on the kernel gateway", "{execution}")
	collector.kernelDuration = b.histogram("chemagent.kernel.duration", "Kernel execution duration in seconds")
	collector.sessionsActive = b.upDown("chemagent.kernel.sessions.active", "Number of live kernel sessions", "{session}")
	if b.err != nil {
		return nil, b.err
	}

	if config.PrometheusPort > 0 {
		if err := collector.StartPrometheusServer(config.PrometheusPort); err != nil {
			return nil, fmt.Errorf("failed to start prometheus server: %w", err)
		}
	}

	return collector, nil
}

type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) counter(name, desc, unit string) metric.Int64Counter {
	if b.err != nil {
		return nil
	}
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s counter: %w", name, err)
	}
	return c
}

func (b *instrumentBuilder) histogram(name, desc string) metric.Float64Histogram {
	if b.err != nil {
		return nil
	}
	h, err := b.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s histogram: %w", name, err)
	}
	return h
}

func (b *instrumentBuilder) upDown(name, desc, unit string) metric.Int64UpDownCounter {
	if b.err != nil {
		return nil
	}
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s gauge: %w", name, err)
	}
	return c
}

// Handler exposes the Prometheus scrape endpoint for embedding in another server.
func (m *MetricsCollector) Handler() http.Handler {
	return promclient.Handler()
}

// StartPrometheusServer starts the Prometheus metrics server
func (m *MetricsCollector) StartPrometheusServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())

	m.prometheusServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("Prometheus metrics server listening on :%d", port)
		if err := m.prometheusServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Prometheus server error: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the metrics collector
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	var errs []error
	if m.prometheusServer != nil {
		errs = append(errs, m.prometheusServer.Shutdown(ctx))
	}
	if m.provider != nil {
		errs = append(errs, m.provider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// RecordLLMRequest records an LLM request
func (m *MetricsCollector) RecordLLMRequest(ctx context.Context, model string, status string, latency time.Duration, inputTokens, outputTokens int) {
	if m == nil || m.llmRequests == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("status", status),
	}

	m.llmRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.llmTokensInput.Add(ctx, int64(inputTokens), metric.WithAttributes(attribute.String("model", model)))
	m.llmTokensOutput.Add(ctx, int64(outputTokens), metric.WithAttributes(attribute.String("model", model)))
	m.llmLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
}

// RecordToolExecution records a tool dispatch. status is success, recoverable or fatal.
func (m *MetricsCollector) RecordToolExecution(ctx context.Context, toolName string, status string, duration time.Duration) {
	if m == nil || m.toolExecutions == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", toolName),
		attribute.String("status", status),
	}

	m.toolExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("tool_name", toolName)))
}

// RecordParseFailure counts a model output rejected by the command extractor.
func (m *MetricsCollector) RecordParseFailure(ctx context.Context, model string) {
	if m == nil || m.parseFailures == nil {
		return
	}
	m.parseFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
}

// RecordAgentRun counts a finished run by outcome (answered, failed).
func (m *MetricsCollector) RecordAgentRun(ctx context.Context, outcome string, iterations int) {
	if m == nil || m.agentRuns == nil {
		return
	}
	m.agentRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("iterations", iterations),
	))
}

// RecordKernelExecution records one code execution. status is ok, empty, timeout or error.
func (m *MetricsCollector) RecordKernelExecution(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.kernelExecutions == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.kernelExecutions.Add(ctx, 1, attrs)
	m.kernelDuration.Record(ctx, duration.Seconds(), attrs)
}

// IncrementActiveSessions increments the live kernel session gauge
func (m *MetricsCollector) IncrementActiveSessions(ctx context.Context) {
	if m == nil || m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Add(ctx, 1)
}

// DecrementActiveSessions decrements the live kernel session gauge
func (m *MetricsCollector) DecrementActiveSessions(ctx context.Context) {
	if m == nil || m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Add(ctx, -1)
}
