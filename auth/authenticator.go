package auth

import (
	"context"
	"net/textproto"
	"strings"
)

// Authenticator turns the credential carried by a tool call into an
// Identity. Implementations must be safe for concurrent use.
//
// A rejected credential is a result, not an error: Authenticate returns
// (AuthFailure(...), nil). The error return is reserved for failures of the
// authenticator itself, such as an unreachable credential store.
type Authenticator interface {
	// Name identifies the authenticator in logs.
	Name() string

	// Supports reports whether the request carries a credential this
	// authenticator understands.
	Supports(ctx context.Context, req *AuthRequest) bool

	Authenticate(ctx context.Context, req *AuthRequest) (*AuthResult, error)
}

// AuthRequest is the credential-bearing part of a tool call.
type AuthRequest struct {
	// Headers holds credential headers. Lookups ignore case.
	Headers map[string][]string

	// Resource names the target, "tool:<name>" for gateway calls.
	Resource string
}

// GetHeader returns the first non-empty value of the named header.
func (r *AuthRequest) GetHeader(key string) string {
	if r == nil || len(r.Headers) == 0 {
		return ""
	}
	if v := first(r.Headers[key]); v != "" {
		return v
	}
	if v := first(r.Headers[textproto.CanonicalMIMEHeaderKey(key)]); v != "" {
		return v
	}
	for k, values := range r.Headers {
		if strings.EqualFold(k, key) {
			if v := first(values); v != "" {
				return v
			}
		}
	}
	return ""
}

func first(values []string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// AuthResult is the outcome of one authentication attempt.
type AuthResult struct {
	Authenticated bool

	// Identity is set when Authenticated is true.
	Identity *Identity

	// Error is the auth sentinel explaining a rejection.
	Error error

	// Method is the credential kind that was evaluated.
	Method string
}

// AuthSuccess wraps an authenticated identity.
func AuthSuccess(identity *Identity) *AuthResult {
	return &AuthResult{Authenticated: true, Identity: identity, Method: string(identity.Method)}
}

// AuthFailure reports a rejected credential of the given method.
func AuthFailure(err error, method string) *AuthResult {
	return &AuthResult{Error: err, Method: method}
}
