// Package ratelimit caps how fast a creator can submit clips.
package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/clipperpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyClipSubmitCreator = "clips:submit:creator:%s"

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Redis  *redis.Client `optional:"true"`
}

type SubmissionLimiter struct {
	bucket    Bucket
	perSecond float64
	burst     int
	log       *zap.Logger
}

func NewSubmissionLimiter(p Params) *SubmissionLimiter {
	log := p.Log.Named("ratelimit")
	var bucket Bucket = NewLocalBucket()
	if tb := NewTokenBucket(p.Redis); tb != nil {
		bucket = tb
	}
	limit := p.Config.SubmitLimit
	if limit.PerMinute <= 0 || limit.Burst <= 0 {
		log.Info("clip submission limit disabled")
	}
	return NewSubmissionLimiterWith(bucket, limit.PerMinute, limit.Burst, log)
}

func NewSubmissionLimiterWith(bucket Bucket, perMinute float64, burst int, log *zap.Logger) *SubmissionLimiter {
	return &SubmissionLimiter{
		bucket:    bucket,
		perSecond: perMinute / 60,
		burst:     burst,
		log:       log,
	}
}

func (l *SubmissionLimiter) Enabled() bool {
	return l != nil && l.bucket != nil && l.perSecond > 0 && l.burst > 0
}

// AllowCreator admits the submission when the limiter is disabled or its
// backend fails; losing the limit is better than losing the clip.
func (l *SubmissionLimiter) AllowCreator(ctx context.Context, creatorID string) *Result {
	if !l.Enabled() {
		return &Result{Allowed: true}
	}
	key := fmt.Sprintf(keyClipSubmitCreator, strings.TrimSpace(creatorID))
	res, err := l.bucket.Allow(ctx, key, l.perSecond, l.burst)
	if err != nil {
		l.log.Warn("ratelimit.backend_error", zap.String("creator_id", creatorID), zap.Error(err))
		return &Result{Allowed: true, Limit: l.burst}
	}
	return res
}
