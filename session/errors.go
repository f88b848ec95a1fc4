package session

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	// ErrAlreadyRunning indicates a live session already exists for the tenant.
	ErrAlreadyRunning = errors.New("session: already running")

	// ErrNotRunning indicates no running session exists for the tenant.
	ErrNotRunning = errors.New("session: not running")

	// ErrDisconnected indicates the tenant's connection was lost.
	ErrDisconnected = errors.New("session: disconnected")

	// ErrConnectionFailed indicates a start never reached readiness.
	ErrConnectionFailed = errors.New("session: connection failed")

	// ErrNotFound indicates the platform has no such channel, message or guild.
	// Platforms wrap it so callers can tell missing resources from outages.
	ErrNotFound = errors.New("session: not found")

	// ErrInvalidTenant indicates a tenant config without an id.
	ErrInvalidTenant = errors.New("session: tenant id is required")
)

// PlatformError wraps a failure reported by the chat platform.
type PlatformError struct {
	Tenant string
	Op     string
	Err    error
}

// Error returns the error message.
func (e *PlatformError) Error() string {
	return fmt.Sprintf("session: platform %s failed for tenant %q: %v", e.Op, e.Tenant, e.Err)
}

// Unwrap returns the platform's error.
func (e *PlatformError) Unwrap() error {
	return e.Err
}

// ShutdownError collects per-tenant failures from ShutdownAll.
type ShutdownError struct {
	Failures map[string]error
}

// Error returns the error message.
func (e *ShutdownError) Error() string {
	ids := slices.Sorted(maps.Keys(e.Failures))
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e.Failures[id]))
	}
	return fmt.Sprintf("session: shutdown failed for %d tenant(s): %s", len(ids), strings.Join(parts, "; "))
}

// Unwrap returns the individual failures.
func (e *ShutdownError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, id := range slices.Sorted(maps.Keys(e.Failures)) {
		errs = append(errs, e.Failures[id])
	}
	return errs
}
