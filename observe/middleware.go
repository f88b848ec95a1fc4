package observe

import (
	"context"
	"time"
)

// CallFunc is the signature Middleware wraps. meta may be updated in place
// while the call runs.
type CallFunc func(ctx context.Context, meta *CallMeta) (any, error)

// Middleware wraps tool calls with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe CallFunc.
//   - Context: Propagates context through tracing spans.
//   - Errors: Errors from the wrapped function are recorded and propagated unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given observability components.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// Wrap wraps a CallFunc with tracing, metrics, and logging.
func (m *Middleware) Wrap(fn CallFunc) CallFunc {
	return func(ctx context.Context, meta *CallMeta) (any, error) {
		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := time.Now()

		result, err := fn(ctx, meta)

		duration := time.Since(start)
		m.tracer.EndSpan(span, meta, err)
		m.metrics.RecordCall(ctx, meta, duration, err)

		fields := []Field{
			F("tool", meta.Tool),
			F("duration_ms", float64(duration.Milliseconds())),
		}
		if meta.Tenant != "" {
			fields = append(fields, F("tenant", meta.Tenant))
		}
		if meta.Principal != "" {
			fields = append(fields, F("principal", meta.Principal))
		}
		if err != nil {
			fields = append(fields, F("code", meta.Code), Err(err))
			m.logger.Warn(ctx, "tool call failed", fields...)
		} else {
			m.logger.Info(ctx, "tool call completed", fields...)
		}

		return result, err
	}
}

// Metrics returns the metrics recorder the middleware writes to.
func (m *Middleware) Metrics() Metrics {
	return m.metrics
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// NopMiddleware returns a middleware that records nothing.
func NopMiddleware() *Middleware {
	return NewMiddleware(NopTracer(), NopMetrics(), NopLogger())
}
