package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/tsengine/logger"
)

const defaultTracerName = "github.com/kbukum/tsengine/observability"

// Span names.
const (
	SpanFilterEvaluate = "filter.evaluate"
	SpanEngineStart    = "engine.start"
	SpanHTTPRequest    = "http.request"
)

// Attribute keys.
const (
	AttrServiceName  = "service.name"
	AttrEngineID     = "engine.id"
	AttrPipeline     = "pipeline.name"
	AttrFilter       = "filter.name"
	AttrFilterMode   = "filter.mode"
	AttrProduced     = "filter.produced"
	AttrStatus       = "status"
	AttrErrorCode    = "error.code"
	AttrErrorMessage = "error.message"
	AttrDurationMs   = "duration_ms"
)

// TracerConfig configures span export.
type TracerConfig struct {
	ExportConfig `yaml:",inline" mapstructure:",squash"`
	// SampleRate is the fraction of traces kept, from 0 to 1.
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// DefaultTracerConfig samples everything and exports to a local collector.
func DefaultTracerConfig(serviceName string) TracerConfig {
	return TracerConfig{ExportConfig: defaultExport(serviceName), SampleRate: 1.0}
}

// InitTracer installs a batching OTLP/HTTP tracer provider as the global
// one, with W3C trace context and baggage propagation. The caller shuts the
// provider down on exit.
func InitTracer(ctx context.Context, cfg *TracerConfig) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	res, err := cfg.resource(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.Info("tracer initialized", logger.Fields("endpoint", cfg.Endpoint, "sample_rate", cfg.SampleRate))
	return tp, nil
}

func sampler(rate float64) sdktrace.Sampler {
	if rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	if rate <= 0 {
		return sdktrace.NeverSample()
	}
	return sdktrace.TraceIDRatioBased(rate)
}

func Tracer(name string) trace.Tracer { return otel.Tracer(name) }

// StartSpan starts a span on the package tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer(defaultTracerName).Start(ctx, name, opts...)
}

func SpanFromContext(ctx context.Context) trace.Span { return trace.SpanFromContext(ctx) }

// SetSpanAttribute sets key on the recording span in ctx. Values of types
// other than string, int, int64, float64, bool and []string are dropped.
func SetSpanAttribute(ctx context.Context, key string, value any) {
	span := SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	var kv attribute.KeyValue
	switch v := value.(type) {
	case string:
		kv = attribute.String(key, v)
	case int:
		kv = attribute.Int(key, v)
	case int64:
		kv = attribute.Int64(key, v)
	case float64:
		kv = attribute.Float64(key, v)
	case bool:
		kv = attribute.Bool(key, v)
	case []string:
		kv = attribute.StringSlice(key, v)
	default:
		return
	}
	span.SetAttributes(kv)
}

// SetSpanError records err on the recording span in ctx.
func SetSpanError(ctx context.Context, err error) {
	if span := SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
	}
}
