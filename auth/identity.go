package auth

import (
	"slices"
	"time"
)

// AuthMethod indicates how authentication was performed.
type AuthMethod string

const (
	AuthMethodNone   AuthMethod = "none"
	AuthMethodToken  AuthMethod = "token"
	AuthMethodAPIKey AuthMethod = "api_key"
)

// Identity represents an authenticated principal.
type Identity struct {
	// Principal is the unique principal identifier.
	Principal string

	// Permissions are the permissions granted to this identity at
	// authentication time.
	Permissions []string

	// Method indicates how authentication was performed.
	Method AuthMethod

	// CredentialID is set when the identity was established with an API key.
	CredentialID string

	// ExpiresAt is when this identity expires (zero for API keys).
	ExpiresAt time.Time

	// IssuedAt is when the underlying token was issued.
	IssuedAt time.Time
}

// HasPermission reports whether the identity holds the required permission,
// honoring the "admin" and "*" wildcards.
func (id *Identity) HasPermission(perm string) bool {
	if id == nil {
		return false
	}
	return HasPermission(id.Permissions, perm)
}

// IsExpired checks if the identity has expired.
func (id *Identity) IsExpired(now time.Time) bool {
	if id.ExpiresAt.IsZero() {
		return false
	}
	return now.After(id.ExpiresAt)
}

func clonePermissions(perms []string) []string {
	if perms == nil {
		return nil
	}
	return slices.Clone(perms)
}
