package auth

import (
	"context"
	"errors"
	"strings"
)

// DefaultAPIKeyHeader is the header carrying an API key.
const DefaultAPIKeyHeader = "X-API-Key"

// APIKeyConfig configures the API key authenticator.
type APIKeyConfig struct {
	// HeaderName is the header containing the API key.
	// Default: "X-API-Key"
	HeaderName string
}

// CredentialVerifier verifies plaintext API keys.
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, plaintext string) (principalID string, permissions []string, err error)
}

// APIKeyAuthenticator validates API keys against a credential verifier.
type APIKeyAuthenticator struct {
	config   APIKeyConfig
	verifier CredentialVerifier
}

// NewAPIKeyAuthenticator creates a new API key authenticator.
func NewAPIKeyAuthenticator(config APIKeyConfig, verifier CredentialVerifier) *APIKeyAuthenticator {
	if config.HeaderName == "" {
		config.HeaderName = DefaultAPIKeyHeader
	}
	return &APIKeyAuthenticator{
		config:   config,
		verifier: verifier,
	}
}

// Name returns "api_key".
func (a *APIKeyAuthenticator) Name() string {
	return "api_key"
}

// Supports returns true if the request contains an API key header.
func (a *APIKeyAuthenticator) Supports(_ context.Context, req *AuthRequest) bool {
	return req.GetHeader(a.config.HeaderName) != ""
}

// Authenticate validates the API key.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, req *AuthRequest) (*AuthResult, error) {
	apiKey := strings.TrimSpace(req.GetHeader(a.config.HeaderName))
	if apiKey == "" {
		return AuthFailure(ErrMissingCredentials, "api_key"), nil
	}

	principalID, perms, err := a.verifier.VerifyCredential(ctx, apiKey)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return AuthFailure(ErrInvalidCredentials, "api_key"), nil
		}
		return nil, err
	}

	identity := &Identity{
		Principal:   principalID,
		Permissions: clonePermissions(perms),
		Method:      AuthMethodAPIKey,
	}
	if id, _, ok := parseAPIKey(apiKey); ok {
		identity.CredentialID = id
	}
	return AuthSuccess(identity), nil
}

// Ensure APIKeyAuthenticator implements Authenticator
var _ Authenticator = (*APIKeyAuthenticator)(nil)

// Ensure CredentialService implements CredentialVerifier
var _ CredentialVerifier = (*CredentialService)(nil)
