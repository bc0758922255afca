// Package telemetry builds the OpenTelemetry tracer provider used by the server and the engine.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/topicflow/topicflow/internal/build"
)

// TracerOption configures the provider built by NewTracerProvider.
type TracerOption func(c *tracerConfig)

func WithOTLPEndpoint(endpoint string) TracerOption {
	return func(c *tracerConfig) { c.endpoint = endpoint }
}

func WithServiceName(serviceName string) TracerOption {
	return func(c *tracerConfig) { c.serviceName = serviceName }
}

// WithSamplingRatio sets the share of root traces that are sampled. Children follow their parent.
func WithSamplingRatio(samplingRatio float64) TracerOption {
	return func(c *tracerConfig) { c.samplingRatio = samplingRatio }
}

// WithInsecure disables TLS towards the collector.
func WithInsecure(insecure bool) TracerOption {
	return func(c *tracerConfig) { c.insecure = insecure }
}

type tracerConfig struct {
	endpoint      string
	serviceName   string
	insecure      bool
	samplingRatio float64
}

// NewTracerProvider builds a provider batching spans to an OTLP gRPC collector and installs it,
// with the W3C trace context and baggage propagators, as the otel globals.
func NewTracerProvider(ctx context.Context, opts ...TracerOption) (*sdktrace.TracerProvider, error) {
	cfg := &tracerConfig{
		endpoint:      "0.0.0.0:4317",
		serviceName:   build.ProjectName,
		insecure:      true,
		samplingRatio: 0.2,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceNameKey.String(cfg.serviceName),
		semconv.ServiceVersionKey.String(build.Version),
	))
	if err != nil {
		return nil, err
	}

	exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.endpoint)}
	if cfg.insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create the otlp exporter for '%s': %w", cfg.endpoint, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.samplingRatio))),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp),
	)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetTracerProvider(tp)
	return tp, nil
}

// MustNewTracerProvider is NewTracerProvider with a two second setup deadline. It panics on error.
func MustNewTracerProvider(opts ...TracerOption) *sdktrace.TracerProvider {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tp, err := NewTracerProvider(ctx, opts...)
	if err != nil {
		panic(err)
	}
	return tp
}

// TraceError marks span as failed with err.
func TraceError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
