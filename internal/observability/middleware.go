package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware returns a Gin middleware that starts a server span for
// every request, extracting any incoming trace context from headers.
func TracingMiddleware(serviceName string) gin.HandlerFunc {
	tracer := otel.Tracer(serviceName)
	propagator := otel.GetTextMapPropagator()

	return func(c *gin.Context) {
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		spanName := c.FullPath()
		if spanName == "" {
			spanName = c.Request.URL.Path
		}

		ctx, span := tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				AttrHTTPMethod.String(c.Request.Method),
				AttrHTTPURL.String(c.Request.URL.String()),
				AttrHTTPRoute.String(spanName),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		statusCode := c.Writer.Status()
		span.SetAttributes(
			AttrHTTPStatusCode.Int(statusCode),
			attribute.Int64("http.response_time_ms", duration.Milliseconds()),
		)

		if statusCode >= 400 {
			span.SetStatus(codes.Error, "HTTP error")
		} else {
			span.SetStatus(codes.Ok, "")
		}

		for _, err := range c.Errors {
			span.RecordError(err.Err)
		}
	}
}

// MetricsMiddleware returns a Gin middleware recording request counts and
// latency against the render pipeline's HTTP metrics.
func MetricsMiddleware(mp *MetricsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		mp.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), duration)
	}
}
