package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	policy := NewRetryPolicy()

	assert.True(t, policy.ShouldRetry(0, 503, nil))
	assert.False(t, policy.ShouldRetry(0, 404, nil))
	assert.True(t, policy.ShouldRetry(0, 0, context.DeadlineExceeded))
	assert.False(t, policy.ShouldRetry(0, 0, context.Canceled))
	assert.False(t, policy.ShouldRetry(2, 503, nil), "last attempt is never retried")
}

func TestRetryPolicy_FixedRetriesAnyError(t *testing.T) {
	policy := NewFixedRetryPolicy(3, time.Second)

	assert.True(t, policy.ShouldRetry(0, 404, errors.New("HTTP 404")))
	assert.True(t, policy.ShouldRetry(1, 0, errors.New("boom")))
	assert.False(t, policy.ShouldRetry(2, 0, errors.New("boom")))

	for attempt := 0; attempt < 3; attempt++ {
		assert.Equal(t, time.Second, policy.CalculateBackoff(attempt))
	}
}

func TestRetryPolicy_ExponentialBackoffCapped(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:       5,
		InitialBackoff:    time.Second,
		MaxBackoff:        3 * time.Second,
		BackoffMultiplier: 2,
	}

	assert.Equal(t, time.Second, policy.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, policy.CalculateBackoff(1))
	assert.Equal(t, 3*time.Second, policy.CalculateBackoff(2))
}

func TestRetryPolicy_ExecuteWithRetryStopsOnContext(t *testing.T) {
	policy := NewFixedRetryPolicy(3, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := policy.ExecuteWithRetry(ctx, arbor.NewLogger(), func() (int, error) {
		calls++
		cancel()
		return 0, errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRateLimiter_TracksHosts(t *testing.T) {
	limiter := NewRateLimiter(1000)
	ctx := context.Background()

	assert.NoError(t, limiter.Wait(ctx, "https://a.example.com/x"))
	assert.NoError(t, limiter.Wait(ctx, "https://A.example.com/y"))
	assert.NoError(t, limiter.Wait(ctx, "https://b.example.com/"))
	assert.Equal(t, 2, limiter.Hosts())

	unlimited := NewRateLimiter(0)
	assert.NoError(t, unlimited.Wait(ctx, "https://a.example.com/"))
	assert.Equal(t, 0, unlimited.Hosts())
}
