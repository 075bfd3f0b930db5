package monitoring

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/medrex/hms-access"

// TracingConfig holds tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Insecure       bool
	SamplingRate   float64
}

// Tracer returns the package-level tracer
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// InitTracing installs an OTLP/gRPC tracer provider. With no endpoint tracing
// stays on the global no-op provider. The returned function flushes and stops
// the provider.
func InitTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SamplingRate > 0 && cfg.SamplingRate < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// StartEvaluationSpan opens the span around one access evaluation
func StartEvaluationSpan(ctx context.Context, userID, permission string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "access.evaluate",
		trace.WithAttributes(
			attribute.String("access.user_id", userID),
			attribute.String("access.permission", permission),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndEvaluationSpan records the outcome and ends the span
func EndEvaluationSpan(span trace.Span, allowed bool, rule, reason string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			attribute.Bool("access.allowed", allowed),
			attribute.String("access.rule", rule),
			attribute.String("access.reason", reason),
		)
	}
	span.End()
}

// StartLookupSpan opens a child span around an attribute source call
func StartLookupSpan(ctx context.Context, userID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "access.attribute_lookup",
		trace.WithAttributes(attribute.String("access.user_id", userID)),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
