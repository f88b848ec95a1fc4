// Package health reports whether the gateway can serve tool calls.
//
// Checkers cover the pieces a call depends on: the session registry (are
// tenants connected?) and, when configured, the Redis instance that backs
// shared rate limits and caching. An Aggregator runs them concurrently under
// one deadline and folds their results into a single Status.
//
// Routes serves the usual probes:
//
//	/healthz        liveness, always 200
//	/readyz         200 unless a check is unhealthy
//	/health         JSON detail for every check
//	/health/{name}  JSON detail for one check
package health
