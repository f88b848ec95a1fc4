package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics records gateway metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordCall records one tool call with its duration and outcome.
	RecordCall(ctx context.Context, meta *CallMeta, duration time.Duration, err error)

	// RecordRateLimited counts one rate-limit rejection.
	RecordRateLimited(ctx context.Context, tool string)

	// RecordVerdict counts one moderation verdict.
	RecordVerdict(ctx context.Context, rule, severity string, approved bool)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
	rateLimited  metric.Int64Counter
	verdicts     metric.Int64Counter
}

// NewMetrics creates the gateway instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	totalCount, err := meter.Int64Counter(
		"gateway.calls.total",
		metric.WithDescription("Total number of tool calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"gateway.calls.errors",
		metric.WithDescription("Total number of failed tool calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"gateway.calls.duration_ms",
		metric.WithDescription("Tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	rateLimited, err := meter.Int64Counter(
		"gateway.ratelimit.rejections",
		metric.WithDescription("Calls rejected by the rate limiter"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	verdicts, err := meter.Int64Counter(
		"moderation.verdicts",
		metric.WithDescription("Moderation verdicts by rule and severity"),
		metric.WithUnit("{verdict}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
		rateLimited:  rateLimited,
		verdicts:     verdicts,
	}, nil
}

// NopMetrics returns metrics backed by a no-op meter.
func NopMetrics() Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("noop"))
	return m
}

func (m *metricsImpl) RecordCall(ctx context.Context, meta *CallMeta, duration time.Duration, err error) {
	attrs := meta.attributes()
	m.totalCount.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil {
		errAttrs := attrs
		if meta.Code != "" {
			errAttrs = append(errAttrs, attribute.String("error.code", meta.Code))
		}
		m.errorCount.Add(ctx, 1, metric.WithAttributes(errAttrs...))
	}

	m.durationHist.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

func (m *metricsImpl) RecordRateLimited(ctx context.Context, tool string) {
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("tool.name", tool)))
}

func (m *metricsImpl) RecordVerdict(ctx context.Context, rule, severity string, approved bool) {
	m.verdicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rule", rule),
		attribute.String("severity", severity),
		attribute.Bool("approved", approved),
	))
}
