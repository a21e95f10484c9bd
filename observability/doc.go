// Package observability provides OpenTelemetry tracing and metrics for the
// engine and its status API.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, &cfg)
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanFilterEvaluate)
//	defer span.End()
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, &cfg)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewEngineMetrics(mp.Meter("tsengine"))
//	metrics.RecordEvaluation(ctx, "mean-close", true, elapsed)
package observability
