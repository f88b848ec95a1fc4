package ratelimit

import (
	"context"
	"time"
)

// Default window parameters.
const (
	DefaultWindow = time.Minute
	DefaultMax    = 60
)

// Limiter admits or rejects events per key.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: a rejection is a Decision with Allowed=false, not an error.
//   Errors report that no decision could be made.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Decision is the outcome of one admission check.
type Decision struct {
	// Allowed is true if the event was admitted and recorded.
	Allowed bool

	// Limit is the maximum number of events per window.
	Limit int

	// Remaining is how many more events the window admits right now.
	Remaining int

	// RetryAfter is the time until the oldest event leaves the window.
	// Zero when Allowed.
	RetryAfter time.Duration

	// ResetAt is when the oldest event in the window expires.
	ResetAt time.Time
}

// Err returns an *ExceededError for rejected decisions and nil otherwise.
func (d Decision) Err(key string) error {
	if d.Allowed {
		return nil
	}
	return &ExceededError{Key: key, RetryAfter: d.RetryAfter}
}

// Config configures a sliding window.
type Config struct {
	// Window is the trailing interval.
	// Default: 1 minute
	Window time.Duration

	// Max is the number of events admitted per window.
	// Default: 60
	Max int

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Max <= 0 {
		c.Max = DefaultMax
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
