package auth

import (
	"context"
	"errors"
	"fmt"
)

// Authorizer determines if an identity is allowed to perform an action.
type Authorizer interface {
	// Authorize checks if the request is permitted.
	// Returns nil if authorized, or an error (typically *AuthzError) if denied.
	Authorize(ctx context.Context, req *AuthzRequest) error

	// Name returns a unique identifier for this authorizer.
	Name() string
}

// AuthzRequest contains the information needed for authorization.
type AuthzRequest struct {
	// Subject is the identity making the request.
	Subject *Identity

	// Resource is the target resource (e.g., "tool:send_message").
	Resource string

	// Permission is the operation-required permission.
	Permission string

	// TenantID scopes the request to one tenant. Empty for unscoped tools.
	TenantID string
}

// AuthzError represents an authorization failure.
type AuthzError struct {
	// Subject is the identity that was denied.
	Subject string

	// Resource is the resource that was denied access to.
	Resource string

	// Permission is the permission that was missing.
	Permission string

	// Kind is ErrInsufficientPermission or ErrTenantAccessDenied.
	Kind error

	// Reason explains why access was denied.
	Reason string
}

// Error returns the error message.
func (e *AuthzError) Error() string {
	return fmt.Sprintf("authorization denied: subject=%q resource=%q permission=%q reason=%q",
		e.Subject, e.Resource, e.Permission, e.Reason)
}

// Unwrap returns the denial kind for errors.Is/As support.
func (e *AuthzError) Unwrap() error {
	return e.Kind
}

// Is reports whether this error matches the target.
func (e *AuthzError) Is(target error) bool {
	return target == ErrForbidden
}

// PermissionAuthorizer enforces the operation permission first, then the
// tenant scope. Holders of "admin" or "*" pass both checks.
type PermissionAuthorizer struct{}

// NewPermissionAuthorizer creates a permission authorizer.
func NewPermissionAuthorizer() *PermissionAuthorizer {
	return &PermissionAuthorizer{}
}

// Name returns "permission".
func (a *PermissionAuthorizer) Name() string {
	return "permission"
}

// Authorize checks the operation permission and the tenant scope.
func (a *PermissionAuthorizer) Authorize(_ context.Context, req *AuthzRequest) error {
	if req.Subject == nil {
		return &AuthzError{
			Resource:   req.Resource,
			Permission: req.Permission,
			Kind:       ErrInsufficientPermission,
			Reason:     "no identity provided",
		}
	}

	granted := req.Subject.Permissions
	if req.Permission != "" && !HasPermission(granted, req.Permission) {
		return &AuthzError{
			Subject:    req.Subject.Principal,
			Resource:   req.Resource,
			Permission: req.Permission,
			Kind:       ErrInsufficientPermission,
			Reason:     "permission not granted",
		}
	}

	if req.TenantID != "" {
		scope := TenantPermission(req.TenantID)
		if !HasPermission(granted, scope) {
			return &AuthzError{
				Subject:    req.Subject.Principal,
				Resource:   req.Resource,
				Permission: scope,
				Kind:       ErrTenantAccessDenied,
				Reason:     "tenant not in scope",
			}
		}
	}
	return nil
}

// AuthorizerFunc is an adapter to allow use of ordinary functions as Authorizers.
type AuthorizerFunc func(ctx context.Context, req *AuthzRequest) error

// Authorize calls the function.
func (f AuthorizerFunc) Authorize(ctx context.Context, req *AuthzRequest) error {
	return f(ctx, req)
}

// Name returns "func" for function-based authorizers.
func (f AuthorizerFunc) Name() string {
	return "func"
}

// IsTenantDenied reports whether err is a tenant-scope denial.
func IsTenantDenied(err error) bool {
	return errors.Is(err, ErrTenantAccessDenied)
}

// Ensure PermissionAuthorizer implements Authorizer
var _ Authorizer = (*PermissionAuthorizer)(nil)
