package observability

import (
	"context"
	"fmt"

	"chemagent/internal/utils/id"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerScope names the instrumentation scope of every chemagent span.
const TracerScope = "chemagent"

const (
	SpanAgentRun       = "chemagent.agent.run"
	SpanAgentIteration = "chemagent.agent.iteration"
	SpanToolExecute    = "chemagent.tool.execute"
	SpanLLMGenerate    = "chemagent.llm.generate"
	SpanKernelExecute  = "chemagent.kernel.execute"
	SpanHTTPServer     = "chemagent.http.request"
)

const (
	AttrConversationID = "chemagent.conversation_id"
	AttrRunID          = "chemagent.run_id"
	AttrToolName       = "chemagent.tool_name"
	AttrModel          = "chemagent.llm.model"
	AttrInputTokens    = "chemagent.llm.input_tokens"
	AttrIteration      = "chemagent.iteration"
	AttrStatus         = "chemagent.status"
	AttrKernelID       = "chemagent.kernel_id"
)

// TracingConfig selects the span exporter. Exporter is one of otlp, zipkin
// or jaeger; an empty endpoint uses the exporter's local default.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Exporter       string  `yaml:"exporter"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	ZipkinEndpoint string  `yaml:"zipkin_endpoint"`
	JaegerEndpoint string  `yaml:"jaeger_endpoint"`
	SampleRate     float64 `yaml:"sample_rate"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
}

// TracerProvider owns the SDK provider when tracing is enabled.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func newSpanExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "otlp":
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(orDefault(cfg.OTLPEndpoint, "localhost:4318")),
			otlptracehttp.WithInsecure(),
		)
	case "zipkin":
		return zipkin.New(orDefault(cfg.ZipkinEndpoint, "http://localhost:9411/api/v2/spans"))
	case "jaeger":
		endpoint := orDefault(cfg.JaegerEndpoint, "http://localhost:14268/api/traces")
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", cfg.Exporter)
	}
}

// NewTracerProvider installs a global tracer provider for cfg. Disabled
// tracing yields a no-op tracer and leaves the global provider alone.
func NewTracerProvider(cfg TracingConfig) (*TracerProvider, error) {
	if !cfg.Enabled {
		return &TracerProvider{tracer: noop.NewTracerProvider().Tracer(TracerScope)}, nil
	}
	if cfg.SampleRate <= 0 || cfg.SampleRate > 1 {
		cfg.SampleRate = 1
	}

	ctx := context.Background()
	exporter, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(orDefault(cfg.ServiceName, "chemagent")),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(provider)
	return &TracerProvider{provider: provider, tracer: provider.Tracer(TracerScope)}, nil
}

// Shutdown flushes pending spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

func (tp *TracerProvider) Tracer() trace.Tracer { return tp.tracer }

// StartSpan opens a span on the global tracer. Conversation and run ids
// found on ctx are attached as attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if conv := id.ConversationIDFromContext(ctx); conv != "" {
		attrs = append(attrs, attribute.String(AttrConversationID, conv))
	}
	if run := id.RunIDFromContext(ctx); run != "" {
		attrs = append(attrs, attribute.String(AttrRunID, run))
	}
	return otel.Tracer(TracerScope).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan sets the span status from err and ends it.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.String(AttrStatus, status))
	span.End()
}

func ToolAttrs(tool string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(AttrToolName, tool)}
}

func LLMAttrs(model string, inputTokens int) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(AttrModel, model), attribute.Int(AttrInputTokens, inputTokens)}
}

func IterationAttrs(iteration int) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.Int(AttrIteration, iteration)}
}
