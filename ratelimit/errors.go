package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimitExceeded is matched by every rejection.
var ErrRateLimitExceeded = errors.New("ratelimit: rate limit exceeded")

// ExceededError reports a rejection with its retry-after hint.
type ExceededError struct {
	Key        string
	RetryAfter time.Duration
}

// Error returns the error message.
func (e *ExceededError) Error() string {
	return fmt.Sprintf("ratelimit: rate limit exceeded for %q, retry after %s", e.Key, e.RetryAfter)
}

// Is reports whether target is ErrRateLimitExceeded.
func (e *ExceededError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// RetryAfterSeconds rounds the hint up to whole seconds, never below one.
func (e *ExceededError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
