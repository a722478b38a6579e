// Package telemetry configures the process-wide OTel tracer provider used
// to trace outbound fetcher calls.
package telemetry

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
)

// Configure wires a global tracer provider exporting to endpoint over
// OTLP/gRPC. When endpoint is empty, tracing is left as the SDK's no-op
// default and Configure returns a no-op shutdown func.
func Configure(endpoint string) func() {
	if endpoint == "" {
		return func() {}
	}

	ctx := context.Background()

	client := otlptracegrpc.NewClient(otlptracegrpc.WithEndpoint(endpoint))
	exp, err := otlptrace.New(ctx, client)
	if err != nil {
		log.Fatalf("telemetry: failed to initialize exporter: %v", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exp),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return func() {
		_ = exp.Shutdown(ctx)
		_ = tp.Shutdown(ctx)
	}
}
