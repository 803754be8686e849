package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracingConfig holds tracing configuration. There is deliberately no
// exporter selection here: spans stay in-process and are only used to
// group the render pipeline's fetch/sandbox/render phases under one trace
// so RecordSpanError/AddSpanAttributes calls have somewhere to land.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	Environment  string  `mapstructure:"environment"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// DefaultTracingConfig returns default tracing configuration
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		Enabled:      true,
		ServiceName:  "arcana-ssr",
		Environment:  "development",
		SamplingRate: 1.0,
	}
}

// TracingProvider manages the render pipeline's tracer
type TracingProvider struct {
	config         *TracingConfig
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	logger         *zap.Logger
}

// NewTracingProvider creates a new tracing provider
func NewTracingProvider(config *TracingConfig, logger *zap.Logger) (*TracingProvider, error) {
	if !config.Enabled {
		return &TracingProvider{
			config: config,
			tracer: otel.Tracer(config.ServiceName),
			logger: logger,
		}, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", config.ServiceName),
			attribute.String("deployment.environment", config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case config.SamplingRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing initialized",
		zap.String("service", config.ServiceName),
		zap.Float64("sampling_rate", config.SamplingRate),
	)

	return &TracingProvider{
		config:         config,
		tracerProvider: tp,
		tracer:         tp.Tracer(config.ServiceName),
		logger:         logger,
	}, nil
}

// Tracer returns the tracer
func (tp *TracingProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// StartSpan starts a new span
func (tp *TracingProvider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tp.tracer.Start(ctx, name, opts...)
}

// Shutdown gracefully shuts down the tracer provider
func (tp *TracingProvider) Shutdown(ctx context.Context) error {
	if tp.tracerProvider != nil {
		return tp.tracerProvider.Shutdown(ctx)
	}
	return nil
}

// SpanFromContext returns the span from context
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// ContextWithSpan returns a new context with the span
func ContextWithSpan(ctx context.Context, span trace.Span) context.Context {
	return trace.ContextWithSpan(ctx, span)
}

// AddSpanAttributes adds attributes to the current span
func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attrs...)
}

// RecordSpanError records an error on the current span
func RecordSpanError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
}

// SetSpanStatus sets the status of the current span
func SetSpanStatus(ctx context.Context, code codes.Code, description string) {
	span := trace.SpanFromContext(ctx)
	span.SetStatus(code, description)
}

// Common attribute keys used across the render pipeline's spans
var (
	AttrHTTPMethod     = attribute.Key("http.method")
	AttrHTTPURL        = attribute.Key("http.url")
	AttrHTTPStatusCode = attribute.Key("http.status_code")
	AttrHTTPRoute      = attribute.Key("http.route")
	AttrRenderURL      = attribute.Key("render.url")
	AttrRenderPhase    = attribute.Key("render.phase")
	AttrCacheName      = attribute.Key("cache.name")
)
