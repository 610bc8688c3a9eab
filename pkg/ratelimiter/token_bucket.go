package ratelimiter

import (
	"sync"
	"time"
)

// TokenBucket implements the RateLimiter interface using the token bucket algorithm.
// It allows for bursts of requests up to the bucket's capacity.
type TokenBucket struct {
	rate       float64   // Tokens generated per second.
	capacity   float64   // Maximum number of tokens the bucket holds.
	available  float64   // Tokens currently available.
	lastRefill time.Time // Last time the bucket was refilled.
	mu         sync.Mutex
}

// NewTokenBucket creates a new TokenBucket.
// rate: the number of tokens to generate per second.
// capacity: the maximum number of tokens (burst size).
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	return &TokenBucket{
		rate:       rate,
		capacity:   float64(capacity),
		available:  float64(capacity), // Start with a full bucket.
		lastRefill: time.Now(),
	}
}

// Allow checks if a request is allowed.
// It refills the bucket based on the elapsed time and consumes one token if available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(time.Now())

	if tb.available >= 1 {
		tb.available--
		return true
	}
	return false
}

// refill adds tokens proportionally to the time elapsed since the last refill.
// Assumes the lock is held.
func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}
	tb.available += elapsed.Seconds() * tb.rate
	if tb.available > tb.capacity {
		tb.available = tb.capacity
	}
	tb.lastRefill = now
}
