// Package session manages the lifecycle of per-tenant chat-platform
// connections.
//
// Each tenant moves through Stopped → Starting → Running, may drop to
// Disconnected when the platform reports connection loss, and returns to
// Stopped through Stopping on an explicit Stop. A tenant is published to
// readers only once the platform signals readiness, so a failed start leaves
// nothing behind.
//
// Start and Stop for one tenant id are serialized; different tenants proceed
// independently. Get and List read an immutable snapshot and never block.
// Stopping a tenant cancels its context, so operations in flight against it
// fail with ErrNotRunning instead of hanging. Platform failures are wrapped
// in *PlatformError and never retried here.
package session
