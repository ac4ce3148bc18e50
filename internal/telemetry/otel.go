// Package telemetry configures OpenTelemetry tracing for the server and worker.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.uber.org/zap"
)

// ShutdownFunc flushes and stops tracing
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup starts tracing when enabled and an endpoint is configured. Export
// failures at startup are logged and tracing stays off; the binaries run
// either way. The returned function is always safe to call.
func Setup(ctx context.Context, enabled bool, serviceName, version, endpoint string, logger *zap.Logger) ShutdownFunc {
	if !enabled {
		return noopShutdown
	}
	if endpoint == "" {
		logger.Warn("otel_enabled_but_endpoint_not_configured")
		return noopShutdown
	}

	tp, err := InitTracer(ctx, serviceName, version, endpoint)
	if err != nil {
		logger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		return noopShutdown
	}
	logger.Info("otel_tracer_initialized", zap.String("endpoint", endpoint))
	return func(ctx context.Context) error { return Shutdown(ctx, tp) }
}

// InitTracer installs a global tracer provider exporting over OTLP/HTTP,
// plus the W3C trace-context and baggage propagators.
func InitTracer(ctx context.Context, serviceName, version, endpoint string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// Shutdown flushes pending spans. A nil provider is a no-op.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
