package remote

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/spaolacci/murmur3"
)

// Retrier retries throttled remote calls with exponential backoff.
// Each instance carries its own jittered random source, so workers
// that start backing off together do not retry in lockstep. A Retrier
// is not safe for concurrent use; create one per worker.
type Retrier struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	rng        *rand.Rand
}

// NewRetrier creates a retrier. The seed string (typically table name
// plus worker identity) determines the jitter sequence, keeping test
// runs reproducible.
func NewRetrier(maxRetries int, baseDelay, maxDelay time.Duration, seed string) *Retrier {
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &Retrier{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		rng:        rand.New(rand.NewSource(int64(murmur3.Sum64([]byte(seed))))),
	}
}

// Do executes op, retrying throttled failures until the ceiling is
// exhausted. Non-throttle errors are returned immediately. When every
// attempt was throttled the last throttle error is returned; callers
// translate that into their terminal unavailability error.
func (r *Retrier) Do(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsThrottle(lastErr) {
			return lastErr
		}

		if attempt < r.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.delayFor(attempt)):
			}
		}
	}
	return lastErr
}

// delayFor computes the backoff for one attempt: exponential growth
// capped at maxDelay, then jittered into the upper half of the window.
func (r *Retrier) delayFor(attempt int) time.Duration {
	backoff := time.Duration(math.Pow(2, float64(attempt))) * r.baseDelay
	if backoff > r.maxDelay || backoff <= 0 {
		backoff = r.maxDelay
	}
	half := backoff / 2
	if half <= 0 {
		return backoff
	}
	return half + time.Duration(r.rng.Int63n(int64(half)+1))
}
