package ratelimiter

import (
	"context"
	"time"
)

// RateLimiter is the interface for rate limiting.
// It defines a single method, Allow, which returns true if a request is allowed,
// and false otherwise.
type RateLimiter interface {
	// Allow returns true if the request is allowed, otherwise returns false.
	Allow() bool
}

// retryInterval is how often Wait re-polls a limiter that said no.
const retryInterval = 10 * time.Millisecond

// Wait blocks until the limiter admits the request or the context is done.
// It returns ctx.Err() when the context expires first.
func Wait(ctx context.Context, limiter RateLimiter) error {
	if limiter == nil {
		return nil
	}
	if limiter.Allow() {
		return nil
	}

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if limiter.Allow() {
				return nil
			}
		}
	}
}
