package gateway

import (
	"encoding/json"
	"errors"

	"github.com/jonwraymond/botops/moderation"
	"github.com/jonwraymond/botops/ratelimit"
)

// Caller carries the credential presented with a call. When both fields
// are empty the gateway falls back to headers stored with auth.WithHeaders.
type Caller struct {
	APIKey string
	Token  string
}

// ToolCall is one request from the tool-calling bridge.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Caller    Caller          `json:"-"`
}

// Envelope is the serialized response for one call.
type Envelope struct {
	OK        bool   `json:"ok"`
	Tool      string `json:"tool"`
	RequestID string `json:"request_id,omitempty"`
	Result    any    `json:"result,omitempty"`
	Error     *Error `json:"error,omitempty"`
}

// Error is the structured error of a failed call.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`

	// RetryAfter is set for RATE_LIMIT_EXCEEDED.
	RetryAfter int `json:"retry_after_seconds,omitempty"`

	// Verdict is set for CONTENT_REJECTED.
	Verdict *moderation.Verdict `json:"verdict,omitempty"`
}

// Code returns the error code, or "" for a successful envelope.
func (e Envelope) Code() Code {
	if e.Error == nil {
		return ""
	}
	return e.Error.Code
}

func success(tool, requestID string, result any) Envelope {
	return Envelope{OK: true, Tool: tool, RequestID: requestID, Result: result}
}

func failure(tool, requestID string, err error) Envelope {
	code := CodeOf(err)
	body := &Error{Code: code, Message: err.Error()}
	if code == CodeInternal {
		body.Message = "internal error"
	}

	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		body.RetryAfter = exceeded.RetryAfterSeconds()
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		v := rejected.Verdict
		body.Verdict = &v
	}
	return Envelope{Tool: tool, RequestID: requestID, Error: body}
}
