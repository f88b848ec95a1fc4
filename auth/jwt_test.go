package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenAuthenticator_Supports(t *testing.T) {
	auth := NewTokenAuthenticator(TokenAuthConfig{}, nil)

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{name: "bearer", header: "Bearer abc", want: true},
		{name: "basic", header: "Basic abc", want: false},
		{name: "empty", header: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &AuthRequest{Headers: map[string][]string{"Authorization": {tt.header}}}
			if got := auth.Supports(context.Background(), req); got != tt.want {
				t.Errorf("Supports() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTokenAuthenticator_Authenticate(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	svc := newTestTokenService(t, clock)
	auth := NewTokenAuthenticator(TokenAuthConfig{}, svc)

	token, err := svc.IssueToken(&Principal{ID: "user-1", Permissions: []string{"get_bots"}})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	req := &AuthRequest{Headers: map[string][]string{"Authorization": {"Bearer " + token}}}

	result, err := auth.Authenticate(context.Background(), req)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if !result.Authenticated {
		t.Fatalf("Authenticated = false: %v", result.Error)
	}
	if result.Identity.Principal != "user-1" || result.Identity.Method != AuthMethodToken {
		t.Errorf("Identity = %+v", result.Identity)
	}

	clock.now = clock.now.Add(2 * time.Hour)
	result, err = auth.Authenticate(context.Background(), req)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if result.Authenticated || !errors.Is(result.Error, ErrTokenExpired) {
		t.Errorf("result = %+v, want ErrTokenExpired", result)
	}
}

func TestTokenAuthenticator_EmptyToken(t *testing.T) {
	auth := NewTokenAuthenticator(TokenAuthConfig{}, nil)
	req := &AuthRequest{Headers: map[string][]string{"Authorization": {"Bearer   "}}}
	result, err := auth.Authenticate(context.Background(), req)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if !errors.Is(result.Error, ErrMissingCredentials) {
		t.Errorf("Error = %v, want ErrMissingCredentials", result.Error)
	}
}
