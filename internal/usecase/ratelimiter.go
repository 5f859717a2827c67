package usecase

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/user/fetch-pipeline/pkg/metrics"
)

// minQPS keeps the interval finite when qps is zero or negative.
const minQPS = 0.0001

// RateLimiter admits at most one fetch start per interval across every
// worker that shares it. There is no burst credit: a limiter idle for a
// minute still admits only one caller immediately.
type RateLimiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

func NewRateLimiter(qps float64) *RateLimiter {
	if qps < minQPS {
		qps = minQPS
	}
	return &RateLimiter{
		limiter:  rate.NewLimiter(rate.Limit(qps), 1),
		interval: time.Duration(float64(time.Second) / qps),
	}
}

// Acquire blocks until the caller's slot arrives and reserves it. It returns
// early with an error when ctx is done.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	start := time.Now()
	err := r.limiter.Wait(ctx)
	metrics.RateLimitWait.Observe(time.Since(start).Seconds())
	return err
}

func (r *RateLimiter) Interval() time.Duration {
	return r.interval
}
