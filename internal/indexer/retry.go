package indexer

import (
	"context"
	"errors"
	"time"

	"swapMonitor/internal/chain"
)

const (
	defaultRetryBackoff     = time.Second
	defaultRateLimitBackoff = 5 * time.Second
	defaultMaxBackoff       = 2 * time.Minute
)

// Backoff picks the wait after a failed cycle. Rate limiting grows
// exponentially up to Max; every other failure waits Base.
type Backoff struct {
	Base          time.Duration
	RateLimitBase time.Duration
	Max           time.Duration

	rateLimited int
}

// Next returns the delay for err and records the attempt.
func (b *Backoff) Next(err error) time.Duration {
	base := b.Base
	if base <= 0 {
		base = defaultRetryBackoff
	}
	max := b.Max
	if max <= 0 {
		max = defaultMaxBackoff
	}

	if !errors.Is(err, chain.ErrRateLimited) {
		return minDuration(base, max)
	}

	delay := b.RateLimitBase
	if delay <= 0 {
		delay = defaultRateLimitBackoff
	}
	for i := 0; i < b.rateLimited && delay < max; i++ {
		delay *= 2
	}
	b.rateLimited++
	return minDuration(delay, max)
}

// Reset clears the exponential state after a successful cycle.
func (b *Backoff) Reset() {
	b.rateLimited = 0
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// contextSleep waits for d or until ctx is done, whichever comes first.
func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
