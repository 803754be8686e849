package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()
	assert.NotNil(t, cfg)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "arcana-ssr", cfg.ServiceName)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 1.0, cfg.SamplingRate)
}

func TestNewTracingProvider_Disabled(t *testing.T) {
	cfg := &TracingConfig{Enabled: false, ServiceName: "test-tracing"}
	tp, err := NewTracingProvider(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, tp)
}

func TestNewTracingProvider_AlwaysSample(t *testing.T) {
	cfg := &TracingConfig{Enabled: true, ServiceName: "test-always", Environment: "test", SamplingRate: 1.0}
	tp, err := NewTracingProvider(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, tp)
	defer tp.Shutdown(context.Background())
}

func TestNewTracingProvider_NeverSample(t *testing.T) {
	cfg := &TracingConfig{Enabled: true, ServiceName: "test-never", Environment: "test", SamplingRate: 0.0}
	tp, err := NewTracingProvider(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, tp)
	defer tp.Shutdown(context.Background())
}

func TestNewTracingProvider_RatioSample(t *testing.T) {
	cfg := &TracingConfig{Enabled: true, ServiceName: "test-ratio", Environment: "test", SamplingRate: 0.5}
	tp, err := NewTracingProvider(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, tp)
	defer tp.Shutdown(context.Background())
}

func TestTracingProvider_Tracer(t *testing.T) {
	cfg := &TracingConfig{Enabled: false, ServiceName: "test-tracer"}
	tp, err := NewTracingProvider(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, tp.Tracer())
}

func TestTracingProvider_StartSpan(t *testing.T) {
	cfg := &TracingConfig{Enabled: false, ServiceName: "test-start-span"}
	tp, err := NewTracingProvider(cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, span := tp.StartSpan(context.Background(), "test-span")
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
	span.End()
}

func TestTracingProvider_Shutdown(t *testing.T) {
	cfg := &TracingConfig{Enabled: false, ServiceName: "test-shutdown"}
	tp, err := NewTracingProvider(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestSpanFromContext(t *testing.T) {
	span := SpanFromContext(context.Background())
	assert.NotNil(t, span)
}

func TestContextWithSpan(t *testing.T) {
	cfg := &TracingConfig{Enabled: false, ServiceName: "test-ctx-span"}
	tp, err := NewTracingProvider(cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, span := tp.StartSpan(context.Background(), "parent-span")
	newCtx := ContextWithSpan(ctx, span)
	assert.NotNil(t, newCtx)
	span.End()
}

func TestAddSpanAttributes(t *testing.T) {
	assert.NotPanics(t, func() {
		AddSpanAttributes(context.Background(),
			AttrHTTPMethod.String("GET"),
			AttrRenderURL.String("https://example.com/pkg.js"),
		)
	})
}

func TestRecordSpanError(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordSpanError(context.Background(), errors.New("test error"))
	})
}

func TestSetSpanStatus(t *testing.T) {
	assert.NotPanics(t, func() {
		SetSpanStatus(context.Background(), codes.Ok, "success")
		SetSpanStatus(context.Background(), codes.Error, "something went wrong")
	})
}

func TestAttrKeys(t *testing.T) {
	assert.Equal(t, "http.method", string(AttrHTTPMethod))
	assert.Equal(t, "http.url", string(AttrHTTPURL))
	assert.Equal(t, "http.status_code", string(AttrHTTPStatusCode))
	assert.Equal(t, "http.route", string(AttrHTTPRoute))
	assert.Equal(t, "render.url", string(AttrRenderURL))
	assert.Equal(t, "render.phase", string(AttrRenderPhase))
	assert.Equal(t, "cache.name", string(AttrCacheName))
}
