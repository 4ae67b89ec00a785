// Package rate caps how many iterations per second the jobs of a task start.
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// LeakyBucket spaces iterations at a fixed rate shared by all jobs of a task.
//
// The bucket keeps a virtual "drip" time that advances by 1/rate for every
// iteration. Next returns when the next iteration may start; when callers
// are behind schedule it returns a time in the past and the iteration runs
// immediately. Up to maxBurst iterations may accumulate while callers are slow.
//
// LeakyBucket is safe for concurrent use.
type LeakyBucket struct {
	rate        float64   // Iterations per second
	lastDrip    time.Time // Time of the last scheduled iteration
	accumulated float64   // Iterations earned but not yet taken
	maxBurst    float64
	now         func() time.Time
	mu          sync.Mutex

	totalIterations atomic.Int64
	totalWaitTime   atomic.Int64 // nanoseconds
}

// NewLeakyBucket creates a bucket allowing rate iterations per second.
// A non-positive rate defaults to 1. The first iteration is never delayed.
func NewLeakyBucket(rate float64, maxBurst float64) *LeakyBucket {
	if rate <= 0 {
		rate = 1.0
	}
	if maxBurst < 1.0 {
		maxBurst = 1.0
	}
	lb := &LeakyBucket{
		rate:     rate,
		maxBurst: maxBurst,
		now:      time.Now,
	}
	lb.lastDrip = lb.now()
	lb.accumulated = 1.0
	return lb
}

// Next reserves the next iteration and returns when it may start.
func (lb *LeakyBucket) Next() time.Time {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	now := lb.now()
	elapsed := now.Sub(lb.lastDrip).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	lb.accumulated += elapsed * lb.rate
	if lb.accumulated > lb.maxBurst {
		lb.accumulated = lb.maxBurst
	}
	lb.totalIterations.Add(1)

	if lb.accumulated >= 1.0 {
		lb.accumulated -= 1.0
		if now.After(lb.lastDrip) {
			lb.lastDrip = now
		}
		return now
	}

	// Schedule in the future and move lastDrip there so the sleep is not counted twice.
	wait := time.Duration((1.0 - lb.accumulated) / lb.rate * float64(time.Second))
	lb.accumulated = 0
	next := now.Add(wait)
	if lb.lastDrip.After(now) {
		next = lb.lastDrip.Add(time.Duration(float64(time.Second) / lb.rate))
	}
	lb.lastDrip = next
	lb.totalWaitTime.Add(int64(next.Sub(now)))
	return next
}

// Wait blocks until the next iteration may start or ctx is done.
func (lb *LeakyBucket) Wait(ctx context.Context) error {
	wait := time.Until(lb.Next())
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Rate returns the configured rate in iterations per second.
func (lb *LeakyBucket) Rate() float64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.rate
}

// Stats returns counters about the bucket's operation.
func (lb *LeakyBucket) Stats() Stats {
	lb.mu.Lock()
	rate := lb.rate
	maxBurst := lb.maxBurst
	lb.mu.Unlock()

	return Stats{
		Rate:            rate,
		MaxBurst:        maxBurst,
		TotalIterations: lb.totalIterations.Load(),
		TotalWaitTime:   time.Duration(lb.totalWaitTime.Load()),
	}
}

// Stats contains statistics about a LeakyBucket.
type Stats struct {
	Rate            float64       `json:"rate"`
	MaxBurst        float64       `json:"maxBurst"`
	TotalIterations int64         `json:"totalIterations"`
	TotalWaitTime   time.Duration `json:"totalWaitTime"`
}
