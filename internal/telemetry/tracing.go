// Package telemetry configures OpenTelemetry tracing for investigations.
//
// Custom span attributes use the `investigator.` prefix.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/miradorstack/mirador-investigator"

// Tracer returns the package-level tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// InitTraceProvider installs an OTLP gRPC exporter. An empty endpoint leaves
// the global noop provider in place. The returned function flushes and stops
// the provider.
func InitTraceProvider(ctx context.Context, endpoint, version string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String("mirador-investigator"),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// StartSessionSpan creates the parent span for one investigation.
func StartSessionSpan(ctx context.Context, sessionID, alertID, service string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "investigation.session",
		trace.WithAttributes(
			attribute.String("investigator.session_id", sessionID),
			attribute.String("investigator.alert_id", alertID),
			attribute.String("investigator.service", service),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSessionSpan records how the session ended.
func EndSessionSpan(span trace.Span, reason string, iterations int, extracted bool) {
	span.SetAttributes(
		attribute.String("investigator.termination", reason),
		attribute.Int("investigator.iterations", iterations),
		attribute.Bool("investigator.extracted", extracted),
	)
	span.End()
}

// StartTurnSpan creates a child span for one role turn.
func StartTurnSpan(ctx context.Context, role, phase string, iteration int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "investigation.turn",
		trace.WithAttributes(
			attribute.String("investigator.role", role),
			attribute.String("investigator.phase", phase),
			attribute.Int("investigator.iteration", iteration),
		),
	)
}

// StartToolCallSpan creates a child span for a tool execution.
func StartToolCallSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "investigation.tool_call",
		trace.WithAttributes(attribute.String("investigator.tool", tool)),
	)
}

// EndSpan closes span, marking it failed when err is non-nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
