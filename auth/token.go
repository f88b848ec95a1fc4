package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the lifetime of issued session tokens.
const DefaultTokenTTL = 24 * time.Hour

// DefaultTokenIssuer is the iss claim of issued session tokens.
const DefaultTokenIssuer = "botops"

// Claims are the verified contents of a session token.
type Claims struct {
	ID          string
	PrincipalID string
	Permissions []string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

type tokenClaims struct {
	Permissions []string `json:"perms"`
	jwt.RegisteredClaims
}

// TokenConfig configures the token service.
type TokenConfig struct {
	// Secret is the HS256 signing key. Required.
	Secret []byte

	// TTL is the token lifetime.
	// Default: 24h
	TTL time.Duration

	// Issuer is the expected and emitted iss claim.
	// Default: "botops"
	Issuer string

	// Now overrides the clock (tests).
	Now func() time.Time
}

// TokenService issues and verifies signed session tokens.
// Tokens are immutable; expiry is checked on every verification.
type TokenService struct {
	config TokenConfig
	parser *jwt.Parser
}

// NewTokenService creates a token service.
func NewTokenService(config TokenConfig) (*TokenService, error) {
	if len(config.Secret) == 0 {
		return nil, errors.New("auth: token signing secret is required")
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTokenTTL
	}
	if config.Issuer == "" {
		config.Issuer = DefaultTokenIssuer
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(config.Now),
	)
	return &TokenService{config: config, parser: parser}, nil
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.config.TTL
}

// IssueToken signs a token asserting the principal's id and permissions.
func (s *TokenService) IssueToken(p *Principal) (string, error) {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return "", ErrInvalidPrincipal
	}

	now := s.config.Now().UTC()
	claims := tokenClaims{
		Permissions: clonePermissions(p.Permissions),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TTL)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.config.Secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates the signature and expiry of a token and returns its
// claims. Errors are ErrTokenExpired, ErrTokenMalformed or ErrSignatureInvalid.
func (s *TokenService) VerifyToken(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMalformed
	}

	var claims tokenClaims
	parsed, err := s.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.config.Secret, nil
	})
	if err != nil {
		return nil, mapJWTError(err)
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" || claims.IssuedAt == nil {
		return nil, ErrTokenMalformed
	}

	return &Claims{
		ID:          claims.ID,
		PrincipalID: claims.Subject,
		Permissions: clonePermissions(claims.Permissions),
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenMalformed
	}
}
