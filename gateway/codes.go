package gateway

import (
	"errors"
	"net/http"

	"github.com/jonwraymond/botops/auth"
	"github.com/jonwraymond/botops/moderation"
	"github.com/jonwraymond/botops/ratelimit"
	"github.com/jonwraymond/botops/session"
)

// Code is a stable error code surfaced to callers.
type Code string

const (
	CodeMissingCredential      Code = "MISSING_CREDENTIAL"
	CodeInvalidCredential      Code = "INVALID_CREDENTIAL"
	CodeExpiredToken           Code = "EXPIRED_TOKEN"
	CodeMalformedToken         Code = "MALFORMED_TOKEN"
	CodeInsufficientPermission Code = "INSUFFICIENT_PERMISSION"
	CodeTenantAccessDenied     Code = "TENANT_ACCESS_DENIED"
	CodeRateLimitExceeded      Code = "RATE_LIMIT_EXCEEDED"
	CodeInvalidArguments       Code = "INVALID_ARGUMENTS"
	CodeUnknownTool            Code = "UNKNOWN_TOOL"
	CodeContentRejected        Code = "CONTENT_REJECTED"
	CodeAlreadyRunning         Code = "ALREADY_RUNNING"
	CodeNotRunning             Code = "NOT_RUNNING"
	CodeDisconnected           Code = "DISCONNECTED"
	CodeConnectionFailed       Code = "CONNECTION_FAILED"
	CodeNotFound               Code = "NOT_FOUND"
	CodePlatformError          Code = "PLATFORM_ERROR"
	CodeInternal               Code = "INTERNAL"
)

// Gateway errors.
var (
	ErrUnknownTool      = errors.New("gateway: unknown tool")
	ErrInvalidArguments = errors.New("gateway: invalid arguments")
	ErrContentRejected  = errors.New("gateway: content rejected")
	ErrMissingConfig    = errors.New("gateway: missing required dependency")
)

// RejectedError carries the verdict that blocked a message.
type RejectedError struct {
	Verdict moderation.Verdict
}

// Error returns the error message.
func (e *RejectedError) Error() string {
	return "gateway: content rejected by " + e.Verdict.Rule + ": " + e.Verdict.Reason
}

// Is reports whether target is ErrContentRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrContentRejected
}

// CodeOf maps an error from any pipeline stage to its code. Nil maps to "".
func CodeOf(err error) Code {
	var exceeded *ratelimit.ExceededError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &exceeded), errors.Is(err, ratelimit.ErrRateLimitExceeded):
		return CodeRateLimitExceeded

	case errors.Is(err, auth.ErrMissingCredentials):
		return CodeMissingCredential
	case errors.Is(err, auth.ErrTokenExpired):
		return CodeExpiredToken
	case errors.Is(err, auth.ErrTokenMalformed):
		return CodeMalformedToken
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrSignatureInvalid),
		errors.Is(err, auth.ErrPrincipalNotFound):
		return CodeInvalidCredential

	case errors.Is(err, auth.ErrTenantAccessDenied):
		return CodeTenantAccessDenied
	case errors.Is(err, auth.ErrInsufficientPermission), errors.Is(err, auth.ErrForbidden):
		return CodeInsufficientPermission

	case errors.Is(err, ErrUnknownTool):
		return CodeUnknownTool
	case errors.Is(err, ErrInvalidArguments), errors.Is(err, session.ErrInvalidTenant):
		return CodeInvalidArguments
	case errors.Is(err, ErrContentRejected):
		return CodeContentRejected

	case errors.Is(err, session.ErrAlreadyRunning):
		return CodeAlreadyRunning
	case errors.Is(err, session.ErrNotRunning):
		return CodeNotRunning
	case errors.Is(err, session.ErrDisconnected):
		return CodeDisconnected
	case errors.Is(err, session.ErrConnectionFailed):
		return CodeConnectionFailed
	case errors.Is(err, session.ErrNotFound):
		return CodeNotFound
	}

	var pe *session.PlatformError
	if errors.As(err, &pe) {
		return CodePlatformError
	}
	return CodeInternal
}

// HTTPStatus returns the HTTP status the daemon answers with for c.
func (c Code) HTTPStatus() int {
	switch c {
	case "":
		return http.StatusOK
	case CodeMissingCredential, CodeInvalidCredential, CodeExpiredToken, CodeMalformedToken:
		return http.StatusUnauthorized
	case CodeInsufficientPermission, CodeTenantAccessDenied:
		return http.StatusForbidden
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeInvalidArguments, CodeContentRejected:
		return http.StatusUnprocessableEntity
	case CodeUnknownTool, CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyRunning, CodeNotRunning, CodeDisconnected:
		return http.StatusConflict
	case CodeConnectionFailed, CodePlatformError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// denied reports whether c is a security rejection rather than a failure.
func (c Code) denied() bool {
	switch c {
	case CodeMissingCredential, CodeInvalidCredential, CodeExpiredToken, CodeMalformedToken,
		CodeInsufficientPermission, CodeTenantAccessDenied, CodeRateLimitExceeded,
		CodeContentRejected:
		return true
	}
	return false
}
