package indexer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"swapMonitor/internal/chain"
)

func TestBackoffRateLimitedGrowsAndCaps(t *testing.T) {
	b := &Backoff{Base: time.Second, RateLimitBase: 5 * time.Second, Max: 30 * time.Second}
	rateLimited := fmt.Errorf("%w: slow down", chain.ErrRateLimited)

	require.Equal(t, 5*time.Second, b.Next(rateLimited))
	require.Equal(t, 10*time.Second, b.Next(rateLimited))
	require.Equal(t, 20*time.Second, b.Next(rateLimited))
	require.Equal(t, 30*time.Second, b.Next(rateLimited))
	require.Equal(t, 30*time.Second, b.Next(rateLimited))

	b.Reset()
	require.Equal(t, 5*time.Second, b.Next(rateLimited))
}

func TestBackoffStandardDelay(t *testing.T) {
	b := &Backoff{Base: 2 * time.Second}
	connectivity := fmt.Errorf("%w: refused", chain.ErrConnectivity)

	require.Equal(t, 2*time.Second, b.Next(connectivity))
	require.Equal(t, 2*time.Second, b.Next(connectivity))
}

func TestBackoffDefaults(t *testing.T) {
	b := &Backoff{}
	require.Equal(t, defaultRetryBackoff, b.Next(chain.ErrConnectivity))
	require.Equal(t, defaultRateLimitBackoff, b.Next(chain.ErrRateLimited))
}

func TestContextSleep(t *testing.T) {
	t.Parallel()

	dur := 10 * time.Millisecond
	st := time.Now()
	require.NoError(t, contextSleep(context.Background(), dur))
	require.GreaterOrEqual(t, time.Since(st), dur)
}

func TestContextSleepCancel(t *testing.T) {
	t.Parallel()

	dur := 10 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), dur)
	defer cancel()

	st := time.Now()
	err := contextSleep(ctx, time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(st), time.Second)
}
