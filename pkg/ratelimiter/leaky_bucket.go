package ratelimiter

import (
	"sync"
	"time"
)

// LeakyBucket implements the RateLimiter interface using the leaky bucket algorithm.
// It ensures a steady outflow of requests, smoothing out bursts.
type LeakyBucket struct {
	rate       float64   // Requests drained per second.
	capacity   float64   // Maximum number of queued requests.
	waterLevel float64   // Requests currently in the bucket.
	lastLeak   time.Time // Last time the bucket was drained.
	mu         sync.Mutex
}

// NewLeakyBucket creates a new LeakyBucket.
// rate: the number of requests to process per second.
// capacity: the maximum burst size (bucket capacity).
func NewLeakyBucket(rate float64, capacity int) *LeakyBucket {
	return &LeakyBucket{
		rate:     rate,
		capacity: float64(capacity),
		lastLeak: time.Now(),
	}
}

// Allow checks if a request is allowed.
// It drains the bucket proportionally to the elapsed time and admits the
// request if the bucket still has room for it.
func (lb *LeakyBucket) Allow() bool {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	now := time.Now()
	leaked := now.Sub(lb.lastLeak).Seconds() * lb.rate
	if leaked > 0 {
		lb.waterLevel -= leaked
		if lb.waterLevel < 0 {
			lb.waterLevel = 0
		}
		lb.lastLeak = now
	}

	if lb.waterLevel < lb.capacity {
		lb.waterLevel++
		return true
	}
	return false
}
