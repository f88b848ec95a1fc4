// Package observe provides observability primitives for tool calls.
//
// It bundles an OpenTelemetry tracer and meter, a JSON structured logger with
// automatic redaction of credential-bearing fields, and a Middleware that
// wraps each gateway call with a span, call metrics and one log line.
// Prometheus exposition is available through Observer.MetricsHandler when the
// prometheus metrics exporter is selected.
package observe
