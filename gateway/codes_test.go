package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jonwraymond/botops/auth"
	"github.com/jonwraymond/botops/moderation"
	"github.com/jonwraymond/botops/ratelimit"
	"github.com/jonwraymond/botops/session"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"missing", auth.ErrMissingCredentials, CodeMissingCredential},
		{"invalid", fmt.Errorf("wrapped: %w", auth.ErrInvalidCredentials), CodeInvalidCredential},
		{"signature", auth.ErrSignatureInvalid, CodeInvalidCredential},
		{"expired", auth.ErrTokenExpired, CodeExpiredToken},
		{"malformed", auth.ErrTokenMalformed, CodeMalformedToken},
		{"insufficient", &auth.AuthzError{Kind: auth.ErrInsufficientPermission}, CodeInsufficientPermission},
		{"tenant", &auth.AuthzError{Kind: auth.ErrTenantAccessDenied}, CodeTenantAccessDenied},
		{"rate", &ratelimit.ExceededError{Key: "p", RetryAfter: time.Second}, CodeRateLimitExceeded},
		{"unknown tool", fmt.Errorf("%w: %q", ErrUnknownTool, "x"), CodeUnknownTool},
		{"arguments", errorf(ErrInvalidArguments, "bad"), CodeInvalidArguments},
		{"rejected", &RejectedError{Verdict: moderation.Verdict{Rule: "r"}}, CodeContentRejected},
		{"already running", session.ErrAlreadyRunning, CodeAlreadyRunning},
		{"not running", session.ErrNotRunning, CodeNotRunning},
		{"disconnected", session.ErrDisconnected, CodeDisconnected},
		{"connection failed", fmt.Errorf("%w: boom", session.ErrConnectionFailed), CodeConnectionFailed},
		{"not found", &session.PlatformError{Op: "send", Err: session.ErrNotFound}, CodeNotFound},
		{"platform", &session.PlatformError{Op: "send", Err: errors.New("502")}, CodePlatformError},
		{"internal", errors.New("boom"), CodeInternal},
		{"context", context.Canceled, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestCode_HTTPStatus(t *testing.T) {
	tests := map[Code]int{
		"":                         http.StatusOK,
		CodeMissingCredential:      http.StatusUnauthorized,
		CodeTenantAccessDenied:     http.StatusForbidden,
		CodeRateLimitExceeded:      http.StatusTooManyRequests,
		CodeInvalidArguments:       http.StatusUnprocessableEntity,
		CodeContentRejected:        http.StatusUnprocessableEntity,
		CodeUnknownTool:            http.StatusNotFound,
		CodeAlreadyRunning:         http.StatusConflict,
		CodePlatformError:          http.StatusBadGateway,
		CodeInternal:               http.StatusInternalServerError,
		CodeInsufficientPermission: http.StatusForbidden,
	}
	for code, want := range tests {
		if got := code.HTTPStatus(); got != want {
			t.Errorf("%q.HTTPStatus() = %d, want %d", code, got, want)
		}
	}
}

func TestFailureEnvelope(t *testing.T) {
	env := failure("send_message", "req", &ratelimit.ExceededError{Key: "p", RetryAfter: 1500 * time.Millisecond})
	if env.OK || env.Code() != CodeRateLimitExceeded {
		t.Fatalf("envelope = %+v", env)
	}
	if env.Error.RetryAfter != 2 {
		t.Errorf("RetryAfter = %d, want 2", env.Error.RetryAfter)
	}

	env = failure("send_message", "req", errors.New("db password leaked"))
	if env.Error.Message != "internal error" {
		t.Errorf("internal message = %q", env.Error.Message)
	}

	env = failure("send_message", "req", &RejectedError{Verdict: moderation.Verdict{Rule: "spam_patterns", Severity: moderation.SeverityMedium}})
	if env.Error.Verdict == nil || env.Error.Verdict.Rule != "spam_patterns" {
		t.Errorf("Verdict = %+v", env.Error.Verdict)
	}
}
