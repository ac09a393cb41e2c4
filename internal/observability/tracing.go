package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ExporterType selects the OTLP transport used for span export.
type ExporterType string

const (
	ExporterOTLPGRPC ExporterType = "otel_grpc"
	ExporterOTLPHTTP ExporterType = "otel_http"
	ExporterNone     ExporterType = "none"
)

// TracingConfig configures the tracer provider built by InitTracing.
type TracingConfig struct {
	Exporter   ExporterType
	Endpoint   string
	SampleRate float64
}

// InitTracing builds and globally registers an OTel tracer provider per
// cfg, returning a shutdown func to be deferred at process exit. When
// cfg.Exporter is ExporterNone, tracing is a no-op and the returned
// shutdown func does nothing.
func InitTracing(ctx context.Context, cfg TracingConfig) (trace.Tracer, func(context.Context) error, error) {
	if cfg.Exporter == ExporterNone || cfg.Exporter == "" {
		return otel.Tracer("vdns"), func(context.Context) error { return nil }, nil
	}

	var client otlptrace.Client
	switch cfg.Exporter {
	case ExporterOTLPGRPC:
		client = otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	case ExporterOTLPHTTP:
		client = otlptracehttp.NewClient(otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
	default:
		return nil, nil, fmt.Errorf("observability: unknown trace exporter type %q", cfg.Exporter)
	}

	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, nil, fmt.Errorf("observability: build otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName("vdns")))
	if err != nil {
		return nil, nil, fmt.Errorf("observability: build resource: %w", err)
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	)
	otel.SetTracerProvider(tp)

	return tp.Tracer("vdns"), tp.Shutdown, nil
}
