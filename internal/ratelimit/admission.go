package ratelimit

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/flashsale/internal/config"
	"github.com/smallbiznis/flashsale/internal/kvstore"
)

const keyAdmissionUser = kvstore.RateLimitPrefix + "admission:user:"

// AdmissionLimiter throttles admission attempts per caller. A nil or
// disabled limiter allows everything.
type AdmissionLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewAdmissionLimiter(cfg config.Config, bucket *TokenBucket) (*AdmissionLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return &AdmissionLimiter{}, nil
	}
	if limitCfg.AdmissionRate <= 0 || limitCfg.AdmissionBurst <= 0 {
		return nil, errors.New("admission rate limit must be positive")
	}
	return &AdmissionLimiter{
		enabled: true,
		bucket:  bucket,
		rate:    limitCfg.AdmissionRate,
		burst:   limitCfg.AdmissionBurst,
	}, nil
}

func (l *AdmissionLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *AdmissionLimiter) Allow(ctx context.Context, userID snowflake.ID) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, keyAdmissionUser+userID.String(), l.rate, l.burst)
}
