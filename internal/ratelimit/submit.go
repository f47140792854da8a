package ratelimit

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/researchhub/internal/config"
)

const keyJoinRequestSubmit = "researchhub:join_request:submit:%s"

// SubmissionLimiter throttles join request submissions per requester.
type SubmissionLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

// NewSubmissionLimiter returns nil when rate limiting is disabled.
func NewSubmissionLimiter(cfg config.Config, client *redis.Client) (*SubmissionLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if client == nil {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}
	if limitCfg.SubmitRate <= 0 || limitCfg.SubmitBurst <= 0 {
		return nil, errors.New("join request submit rate limit must be positive")
	}

	return &SubmissionLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.SubmitRate,
		burst:   limitCfg.SubmitBurst,
	}, nil
}

func (l *SubmissionLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *SubmissionLimiter) Allow(ctx context.Context, requesterID snowflake.ID) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyJoinRequestSubmit, requesterID.String()), l.rate, l.burst)
}
