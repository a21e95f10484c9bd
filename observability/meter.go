package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/tsengine/logger"
)

// Instrument names.
const (
	MetricFilterEvaluations = "filter.evaluations"
	MetricFilterMessages    = "filter.messages"
	MetricFilterDuration    = "filter.duration"
	MetricFilterErrors      = "filter.errors"
	MetricPipelineActive    = "pipeline.active"
	MetricPipelineRuns      = "pipeline.runs"
)

const defaultInterval = 15 * time.Second

// MeterConfig configures metric export.
type MeterConfig struct {
	ExportConfig `yaml:",inline" mapstructure:",squash"`
	// Interval is the time between exports.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{ExportConfig: defaultExport(serviceName), Interval: defaultInterval}
}

// InitMeter installs a periodic OTLP/HTTP meter provider as the global one.
// The caller shuts the provider down on exit, which flushes pending data.
func InitMeter(ctx context.Context, cfg *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	res, err := cfg.resource(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields("endpoint", cfg.Endpoint, "interval", cfg.Interval.String()))
	return mp, nil
}

// EngineMetrics holds the instruments pipelines and the metrics decorator
// record on.
type EngineMetrics struct {
	evaluations    metric.Int64Counter
	messages       metric.Int64Counter
	duration       metric.Float64Histogram
	errors         metric.Int64Counter
	pipelineActive metric.Int64UpDownCounter
	pipelineRuns   metric.Int64Counter
}

// NewEngineMetrics creates the engine instruments on meter.
func NewEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	m := &EngineMetrics{}
	var err error
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.evaluations, MetricFilterEvaluations, "Filter evaluation steps"},
		{&m.messages, MetricFilterMessages, "Filter evaluation steps that produced output"},
		{&m.errors, MetricFilterErrors, "Filter evaluation errors by code"},
		{&m.pipelineRuns, MetricPipelineRuns, "Finished pipeline runs by final status"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("creating %s: %w", c.name, err)
		}
	}

	m.duration, err = meter.Float64Histogram(MetricFilterDuration,
		metric.WithDescription("Duration of productive filter evaluations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", MetricFilterDuration, err)
	}
	m.pipelineActive, err = meter.Int64UpDownCounter(MetricPipelineActive,
		metric.WithDescription("Pipelines currently running"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", MetricPipelineActive, err)
	}
	return m, nil
}

// RecordEvaluation counts one evaluation step. Only productive steps are
// timed, so idle polls stay out of the histogram.
func (m *EngineMetrics) RecordEvaluation(ctx context.Context, filter string, produced bool, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String(AttrFilter, filter))
	m.evaluations.Add(ctx, 1, attrs)
	if produced {
		m.messages.Add(ctx, 1, attrs)
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
}

func (m *EngineMetrics) RecordFilterError(ctx context.Context, filter, code string) {
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrFilter, filter),
		attribute.String(AttrErrorCode, code),
	))
}

func (m *EngineMetrics) PipelineStarted(ctx context.Context, pipeline string) {
	m.pipelineActive.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrPipeline, pipeline)))
}

// PipelineStopped lowers the active count and records the run's final
// status.
func (m *EngineMetrics) PipelineStopped(ctx context.Context, pipeline, status string) {
	m.pipelineActive.Add(ctx, -1, metric.WithAttributes(attribute.String(AttrPipeline, pipeline)))
	m.pipelineRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrPipeline, pipeline),
		attribute.String(AttrStatus, status),
	))
}
