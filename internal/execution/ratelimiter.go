package execution

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// RateLimiter is a token-bucket per API key enforcing the venue's
// documented per-minute submission limit. Waiting submissions
// block, not drop, up to a configured deadline, after which the order is
// rejected locally with RateLimited.
type RateLimiter struct {
	limiter *rate.Limiter
	wait time.Duration
}

// NewRateLimiter builds a limiter allowing perMinute submissions per
// minute, with bursts up to perMinute (the venue's limit is a rate, not a
// burst allowance beyond it), and blocking up to wait before giving up.
func NewRateLimiter(perMinute int, wait time.Duration) *RateLimiter {
	r := rate.Limit(float64(perMinute) / 60.0)
	burst := perMinute
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(r, burst), wait: wait}
}

// Acquire blocks until a token is available or wait elapses, whichever is
// first. A deadline breach returns a local RateLimited error — the
// submission never reaches the venue.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, r.wait)
	defer cancel()

	if err := r.limiter.Wait(waitCtx); err != nil {
		return schema.NewError(schema.ErrOrderRejection, "rate limit wait exceeded deadline", err)
	}
	return nil
}
