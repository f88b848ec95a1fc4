package auth

import "errors"

// Sentinel errors for authentication and authorization.
var (
	// Authentication errors
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenMalformed     = errors.New("auth: token malformed")
	ErrSignatureInvalid   = errors.New("auth: token signature invalid")

	// Administration errors
	ErrPrincipalNotFound  = errors.New("auth: principal not found")
	ErrCredentialNotFound = errors.New("auth: credential not found")
	ErrInvalidPrincipal   = errors.New("auth: invalid principal")

	// Authorization errors
	ErrForbidden              = errors.New("auth: access denied")
	ErrInsufficientPermission = errors.New("auth: insufficient permission")
	ErrTenantAccessDenied     = errors.New("auth: tenant access denied")
)
