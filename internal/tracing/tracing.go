// Package tracing configures OpenTelemetry export over OTLP/HTTP.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

type Options struct {
	Enabled     bool
	Endpoint    string // host:port of the collector, e.g. localhost:4318
	ServiceName string
}

// Init installs a global tracer provider exporting to opts.Endpoint. When
// tracing is disabled the global no-op provider stays in place. The returned
// function flushes and stops the exporter.
func Init(ctx context.Context, opts Options) (func(context.Context) error, error) {
	if !opts.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(opts.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(opts.ServiceName),
		)),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
