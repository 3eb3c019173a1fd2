// Package telemetry wires OpenTelemetry tracing for the operations
// this tool performs: fingerprinting a file and running a duplicate
// pass or clip query.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds OpenTelemetry configuration for a soundmark run.
type Config struct {
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	Enabled      bool
	SamplingRate float64 // 1.0 = 100%, 0.1 = 10%
}

// DefaultConfig returns tracing disabled; a CLI run has no collector
// unless one is explicitly configured.
func DefaultConfig() Config {
	return Config{
		ServiceName:  "soundmark",
		Environment:  "development",
		OTLPEndpoint: "localhost:4318",
		Enabled:      false,
		SamplingRate: 1.0,
	}
}

// InitTracer initializes the OpenTelemetry tracer provider with an
// OTLP HTTP exporter. Returns (nil, nil) when tracing is disabled.
func InitTracer(cfg Config) (*sdktrace.TracerProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create OTLP exporter: %w", err)
	}

	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))

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

	return tp, nil
}

var tracer = otel.Tracer("soundmark")

// StartFingerprintSpan wraps one worker's fingerprinting of a single
// file.
func StartFingerprintSpan(ctx context.Context, path string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "fingerprint.file", trace.WithAttributes(
		attribute.String("soundmark.path", path),
	))
}

// StartDuplicatePassSpan wraps one full duplicate-pass run.
func StartDuplicatePassSpan(ctx context.Context, trackCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "match.duplicate_pass", trace.WithAttributes(
		attribute.Int("soundmark.track_count", trackCount),
	))
}

// StartQuerySpan wraps one clip-lookup query.
func StartQuerySpan(ctx context.Context, landmarkCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "match.query", trace.WithAttributes(
		attribute.Int("soundmark.landmark_count", landmarkCount),
	))
}
