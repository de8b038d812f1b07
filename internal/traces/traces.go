// Package traces wires OpenTelemetry tracing into RiskPulse. Spans are
// emitted by the risk scorer, the anomaly detector, the incident manager,
// the correlation engine, and the detection cycle.
package traces

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName     = "github.com/riskpulse/riskpulse"
	serviceName    = "riskpulse"
	serviceVersion = "0.1.0"
)

// Init configures the global tracer provider. An empty otlpEndpoint
// disables export entirely and every span becomes a no-op. The returned
// shutdown function flushes pending spans and must be called on stop.
func Init(ctx context.Context, otlpEndpoint string, logger *slog.Logger) (func(context.Context) error, error) {
	if otlpEndpoint == "" {
		logger.Info("tracing disabled (no OTEL_EXPORTER_OTLP_ENDPOINT set)")
		return func(context.Context) error { return nil }, nil
	}

	tp, err := newProvider(ctx, otlpEndpoint)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing enabled", "endpoint", otlpEndpoint)
	return tp.Shutdown, nil
}

func newProvider(ctx context.Context, endpoint string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// StartSpan opens a span on the package tracer. Callers must end the
// returned span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// Attribute helpers keep span keys consistent across packages.

func SignalID(id string) attribute.KeyValue {
	return attribute.String("signal.id", id)
}

func IncidentID(id string) attribute.KeyValue {
	return attribute.String("incident.id", id)
}

func AnomalyType(t string) attribute.KeyValue {
	return attribute.String("anomaly.type", t)
}

func Tier(tier string) attribute.KeyValue {
	return attribute.String("risk.tier", tier)
}

func GraphDepth(depth int) attribute.KeyValue {
	return attribute.Int("graph.depth", depth)
}

func TopK(k int) attribute.KeyValue {
	return attribute.Int("top_k", k)
}
