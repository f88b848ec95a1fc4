// Package cache stores results of read-only tool calls.
//
// Keys are scoped by tool and tenant and derived from the call's canonical
// arguments, so two callers asking for the same channel of the same tenant
// share one entry while different tenants never do. Only tools named in the
// Policy are cached, and failed loads are never stored.
//
// MemoryCache serves a single process; RedisCache shares entries across
// gateway instances. Loader puts either behind a read-through call that
// collapses concurrent misses for the same key.
package cache
