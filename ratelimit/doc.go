// Package ratelimit provides per-key sliding-window admission control.
//
// A window admits at most Max events per trailing Window for each key. Every
// check prunes timestamps that fell out of the window before counting, so a
// window never holds entries older than its duration. Rejected checks record
// nothing and carry a RetryAfter hint equal to the time until the oldest
// admitted event leaves the window.
//
// Two implementations share the Limiter interface:
//
//   - SlidingWindow keeps windows in process memory. Checks for one key are
//     serialized; checks for different keys run independently.
//   - RedisSlidingWindow keeps each window in a Redis sorted set updated by a
//     Lua script, so several processes can share limits. It falls back to an
//     in-memory window when Redis is unavailable.
package ratelimit
