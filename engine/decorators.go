package engine

import (
	"context"
	"time"

	apperrors "github.com/kbukum/tsengine/errors"
	"github.com/kbukum/tsengine/logger"
	"github.com/kbukum/tsengine/observability"
)

// WithTracing wraps a filter so every evaluation runs in a span named
// "{prefix}.{filterName}". Idle polls produce spans too, so it suits
// asynchronous or low-rate stages best.
func WithTracing(f Filter, prefix string) Filter {
	return &tracingFilter{Filter: f, prefix: prefix}
}

type tracingFilter struct {
	Filter
	prefix string
}

func (f *tracingFilter) Evaluate(ctx context.Context) (bool, error) {
	ctx, span := observability.StartSpan(ctx, f.prefix+"."+f.Name())
	defer span.End()

	observability.SetSpanAttribute(ctx, observability.AttrFilter, f.Name())
	observability.SetSpanAttribute(ctx, observability.AttrFilterMode, f.Mode().String())

	produced, err := f.Filter.Evaluate(ctx)
	observability.SetSpanAttribute(ctx, observability.AttrProduced, produced)
	if err != nil {
		observability.SetSpanError(ctx, err)
	}
	return produced, err
}

// WithMetrics wraps a filter so every evaluation is counted and timed on m.
func WithMetrics(f Filter, m *observability.EngineMetrics) Filter {
	if m == nil {
		return f
	}
	return &metricsFilter{Filter: f, metrics: m}
}

type metricsFilter struct {
	Filter
	metrics *observability.EngineMetrics
}

func (f *metricsFilter) Evaluate(ctx context.Context) (bool, error) {
	start := time.Now()
	produced, err := f.Filter.Evaluate(ctx)
	f.metrics.RecordEvaluation(ctx, f.Name(), produced, time.Since(start))
	if err != nil {
		code := string(apperrors.ErrCodeFilterFailed)
		if appErr, ok := apperrors.AsAppError(err); ok {
			code = string(appErr.Code)
		}
		f.metrics.RecordFilterError(ctx, f.Name(), code)
	}
	return produced, err
}

// WithLogging wraps a filter so productive evaluations are logged at debug
// level and failures at error level. A nil log uses the filter's own.
func WithLogging(f Filter, log *logger.Logger) Filter {
	return &loggingFilter{Filter: f, log: log}
}

type loggingFilter struct {
	Filter
	log *logger.Logger
}

func (f *loggingFilter) target() *logger.Logger {
	if f.log != nil {
		return f.log
	}
	return f.base().Logger()
}

func (f *loggingFilter) Evaluate(ctx context.Context) (bool, error) {
	start := time.Now()
	produced, err := f.Filter.Evaluate(ctx)
	duration := time.Since(start)

	switch {
	case err != nil:
		fields := logger.ErrorFields("evaluate", err)
		fields[logger.FieldFilter] = f.Name()
		f.target().Error("filter evaluation failed", fields)
	case produced:
		fields := logger.DurationFields("evaluate", duration)
		fields[logger.FieldFilter] = f.Name()
		f.target().Debug("filter produced output", fields)
	}
	return produced, err
}
