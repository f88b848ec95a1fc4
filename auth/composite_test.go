package auth

import (
	"context"
	"errors"
	"testing"
)

type stubAuthenticator struct {
	name     string
	header   string
	identity *Identity
	calls    int
}

func (s *stubAuthenticator) Name() string { return s.name }

func (s *stubAuthenticator) Supports(_ context.Context, req *AuthRequest) bool {
	return req.GetHeader(s.header) != ""
}

func (s *stubAuthenticator) Authenticate(context.Context, *AuthRequest) (*AuthResult, error) {
	s.calls++
	return AuthSuccess(s.identity), nil
}

func TestCompositeAuthenticator(t *testing.T) {
	key := &stubAuthenticator{name: "key", header: "X-API-Key", identity: &Identity{Principal: "k", Method: AuthMethodAPIKey}}
	tok := &stubAuthenticator{name: "tok", header: "Authorization", identity: &Identity{Principal: "t", Method: AuthMethodToken}}
	composite := NewCompositeAuthenticator(key, tok)
	ctx := context.Background()

	t.Run("prefers first supporting", func(t *testing.T) {
		req := &AuthRequest{Headers: map[string][]string{"X-API-Key": {"a"}, "Authorization": {"b"}}}
		result, err := composite.Authenticate(ctx, req)
		if err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
		if result.Identity.Principal != "k" {
			t.Errorf("Principal = %q, want k", result.Identity.Principal)
		}
		if tok.calls != 0 {
			t.Error("second authenticator should not run")
		}
	})

	t.Run("falls through to supporting", func(t *testing.T) {
		req := &AuthRequest{Headers: map[string][]string{"Authorization": {"b"}}}
		result, _ := composite.Authenticate(ctx, req)
		if result.Identity.Principal != "t" {
			t.Errorf("Principal = %q, want t", result.Identity.Principal)
		}
	})

	t.Run("no credentials", func(t *testing.T) {
		result, err := composite.Authenticate(ctx, &AuthRequest{})
		if err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
		if result.Authenticated || !errors.Is(result.Error, ErrMissingCredentials) {
			t.Errorf("result = %+v", result)
		}
		if composite.Supports(ctx, &AuthRequest{}) {
			t.Error("Supports() = true for empty request")
		}
	})
}
