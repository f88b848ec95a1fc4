package observe

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type telemetry struct {
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
	logs   *bytes.Buffer
	mw     *Middleware
}

func newTelemetry(t *testing.T) *telemetry {
	t.Helper()
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	var logs bytes.Buffer
	return &telemetry{
		spans:  spans,
		reader: reader,
		logs:   &logs,
		mw:     NewMiddleware(NewTracer(tp.Tracer("test")), metrics, NewLoggerWithWriter("debug", &logs)),
	}
}

func (tm *telemetry) collect(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := tm.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumValue(m *metricdata.Metrics) int64 {
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		return -1
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

// TestMiddleware_SuccessPath verifies a successful call records a span, metrics and a log line.
func TestMiddleware_SuccessPath(t *testing.T) {
	tm := newTelemetry(t)

	wrapped := tm.mw.Wrap(func(ctx context.Context, meta *CallMeta) (any, error) {
		meta.Principal = "user-1"
		return "ok", nil
	})
	result, err := wrapped(context.Background(), &CallMeta{Tool: "get_bots"})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %v, want ok", result)
	}

	spans := tm.spans.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "tool.call.get_bots" {
		t.Errorf("span name = %q", spans[0].Name())
	}
	var principal string
	for _, attr := range spans[0].Attributes() {
		if attr.Key == "principal.id" {
			principal = attr.Value.AsString()
		}
	}
	if principal != "user-1" {
		t.Errorf("principal.id = %q, want user-1", principal)
	}

	rm := tm.collect(t)
	if m := findMetric(rm, "gateway.calls.total"); m == nil || sumValue(m) != 1 {
		t.Error("gateway.calls.total not recorded")
	}
	if m := findMetric(rm, "gateway.calls.errors"); m != nil && sumValue(m) != 0 {
		t.Error("gateway.calls.errors recorded on success")
	}
	if findMetric(rm, "gateway.calls.duration_ms") == nil {
		t.Error("gateway.calls.duration_ms not recorded")
	}

	entries := decodeLines(t, tm.logs)
	if len(entries) != 1 || entries[0]["msg"] != "tool call completed" || entries[0]["principal"] != "user-1" {
		t.Errorf("log entries = %v", entries)
	}
}

// TestMiddleware_ErrorPath verifies failures carry the error code through every signal.
func TestMiddleware_ErrorPath(t *testing.T) {
	tm := newTelemetry(t)
	testErr := errors.New("tenant not running")

	wrapped := tm.mw.Wrap(func(ctx context.Context, meta *CallMeta) (any, error) {
		meta.Tenant = "support"
		meta.Code = "NOT_RUNNING"
		return nil, testErr
	})
	_, err := wrapped(context.Background(), &CallMeta{Tool: "send_message"})
	if err != testErr {
		t.Errorf("expected error %v, got %v", testErr, err)
	}

	span := tm.spans.Ended()[0]
	attrs := map[attribute.Key]attribute.Value{}
	for _, a := range span.Attributes() {
		attrs[a.Key] = a.Value
	}
	if !attrs["tool.error"].AsBool() {
		t.Error("expected tool.error=true")
	}
	if attrs["error.code"].AsString() != "NOT_RUNNING" {
		t.Errorf("error.code = %q", attrs["error.code"].AsString())
	}
	if attrs["tenant.id"].AsString() != "support" {
		t.Errorf("tenant.id = %q", attrs["tenant.id"].AsString())
	}

	if m := findMetric(tm.collect(t), "gateway.calls.errors"); m == nil || sumValue(m) != 1 {
		t.Error("gateway.calls.errors not incremented")
	}

	entry := decodeLines(t, tm.logs)[0]
	if entry["level"] != "warn" || entry["code"] != "NOT_RUNNING" || entry["error"] != "tenant not running" {
		t.Errorf("log entry = %v", entry)
	}
}

// TestMiddleware_ContextPropagation verifies the wrapped function sees the span context.
func TestMiddleware_ContextPropagation(t *testing.T) {
	tm := newTelemetry(t)
	type key struct{}

	var sawValue bool
	wrapped := tm.mw.Wrap(func(ctx context.Context, meta *CallMeta) (any, error) {
		sawValue = ctx.Value(key{}) == "v"
		return nil, nil
	})
	ctx := context.WithValue(context.Background(), key{}, "v")
	_, _ = wrapped(ctx, &CallMeta{Tool: "get_bots"})
	if !sawValue {
		t.Error("context value lost")
	}
}

func TestMetrics_RateLimitedAndVerdicts(t *testing.T) {
	tm := newTelemetry(t)
	ctx := context.Background()
	m := tm.mw.Metrics()

	m.RecordRateLimited(ctx, "send_message")
	m.RecordRateLimited(ctx, "send_message")
	m.RecordVerdict(ctx, "forbidden_words", "high", false)

	rm := tm.collect(t)
	if got := sumValue(findMetric(rm, "gateway.ratelimit.rejections")); got != 2 {
		t.Errorf("rejections = %d, want 2", got)
	}
	if got := sumValue(findMetric(rm, "moderation.verdicts")); got != 1 {
		t.Errorf("verdicts = %d, want 1", got)
	}
}

func TestNopMiddleware(t *testing.T) {
	wrapped := NopMiddleware().Wrap(func(ctx context.Context, meta *CallMeta) (any, error) {
		time.Sleep(time.Millisecond)
		return 1, nil
	})
	if v, err := wrapped(context.Background(), &CallMeta{Tool: "x"}); err != nil || v != 1 {
		t.Errorf("wrapped() = %v, %v", v, err)
	}
}

func TestMiddlewareFromObserver_Nil(t *testing.T) {
	if _, err := MiddlewareFromObserver(nil); !errors.Is(err, ErrNilObserver) {
		t.Errorf("error = %v, want ErrNilObserver", err)
	}
}
