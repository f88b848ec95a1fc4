package ratelimit_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/botops/ratelimit"
)

func ExampleSlidingWindow() {
	limiter := ratelimit.NewSlidingWindow(ratelimit.Config{Window: time.Minute, Max: 2})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, _ := limiter.Allow(ctx, "principal-1")
		if err := d.Err("principal-1"); errors.Is(err, ratelimit.ErrRateLimitExceeded) {
			fmt.Println("rejected")
			continue
		}
		fmt.Println("allowed, remaining:", d.Remaining)
	}
	// Output:
	// allowed, remaining: 1
	// allowed, remaining: 0
	// rejected
}
