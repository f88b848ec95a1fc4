package auth

import (
	"context"
	"strings"
)

// TokenAuthConfig configures the session token authenticator.
type TokenAuthConfig struct {
	// HeaderName is the header containing the token.
	// Default: "Authorization"
	HeaderName string

	// TokenPrefix is the prefix before the token in the header.
	// Default: "Bearer "
	TokenPrefix string
}

// TokenVerifier verifies session tokens.
type TokenVerifier interface {
	VerifyToken(token string) (*Claims, error)
}

// TokenAuthenticator validates bearer session tokens.
type TokenAuthenticator struct {
	config   TokenAuthConfig
	verifier TokenVerifier
}

// NewTokenAuthenticator creates a new session token authenticator.
func NewTokenAuthenticator(config TokenAuthConfig, verifier TokenVerifier) *TokenAuthenticator {
	if config.HeaderName == "" {
		config.HeaderName = "Authorization"
	}
	if config.TokenPrefix == "" {
		config.TokenPrefix = "Bearer "
	}
	return &TokenAuthenticator{
		config:   config,
		verifier: verifier,
	}
}

// Name returns "token".
func (a *TokenAuthenticator) Name() string {
	return "token"
}

// Supports returns true if the request carries a bearer token.
func (a *TokenAuthenticator) Supports(_ context.Context, req *AuthRequest) bool {
	return strings.HasPrefix(req.GetHeader(a.config.HeaderName), a.config.TokenPrefix)
}

// Authenticate validates the session token.
func (a *TokenAuthenticator) Authenticate(_ context.Context, req *AuthRequest) (*AuthResult, error) {
	header := req.GetHeader(a.config.HeaderName)
	tokenString, found := strings.CutPrefix(header, a.config.TokenPrefix)
	if !found {
		return AuthFailure(ErrMissingCredentials, "token"), nil
	}
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return AuthFailure(ErrMissingCredentials, "token"), nil
	}

	claims, err := a.verifier.VerifyToken(tokenString)
	if err != nil {
		return AuthFailure(err, "token"), nil
	}

	return AuthSuccess(&Identity{
		Principal:   claims.PrincipalID,
		Permissions: claims.Permissions,
		Method:      AuthMethodToken,
		ExpiresAt:   claims.ExpiresAt,
		IssuedAt:    claims.IssuedAt,
	}), nil
}

// Ensure TokenAuthenticator implements Authenticator
var _ Authenticator = (*TokenAuthenticator)(nil)

// Ensure TokenService implements TokenVerifier
var _ TokenVerifier = (*TokenService)(nil)
