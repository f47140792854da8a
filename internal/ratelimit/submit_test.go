package ratelimit

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/researchhub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionLimiterDisabled(t *testing.T) {
	limiter, err := NewSubmissionLimiter(config.Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestSubmissionLimiterConfigErrors(t *testing.T) {
	enabled := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, SubmitRate: 1, SubmitBurst: 2}}

	_, err := NewSubmissionLimiter(enabled, nil)
	assert.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	bad := enabled
	bad.RateLimit.SubmitBurst = 0
	_, err = NewSubmissionLimiter(bad, client)
	assert.Error(t, err)

	limiter, err := NewSubmissionLimiter(enabled, client)
	require.NoError(t, err)
	assert.True(t, limiter.Enabled())
}

func TestRetryAfter(t *testing.T) {
	assert.Zero(t, retryAfter(true, 0, 1))
	assert.Zero(t, retryAfter(false, 0, 0))
	assert.Equal(t, time.Second, retryAfter(false, 0.5, 0.5))
	assert.Equal(t, 5*time.Second, retryAfter(false, 0, 0.2))
	assert.Equal(t, 2*time.Second, retryAfter(false, 0, 0.5))
}

func TestBucketResultCasts(t *testing.T) {
	assert.Equal(t, 0.25, castToFloat("0.25"))
	assert.EqualValues(t, 1, castToInt(int64(1)))
}
