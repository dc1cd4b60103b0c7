package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// LocalBucket is the single-process Bucket used when redis is unavailable.
type LocalBucket struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewLocalBucket() *LocalBucket {
	return &LocalBucket{limiters: map[string]*rate.Limiter{}}
}

func (b *LocalBucket) Allow(_ context.Context, key string, perSecond float64, burst int) (*Result, error) {
	if err := validate(key, perSecond, burst); err != nil {
		return nil, err
	}

	b.mu.Lock()
	limiter, ok := b.limiters[key]
	if !ok || limiter.Burst() != burst || limiter.Limit() != rate.Limit(perSecond) {
		limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		b.limiters[key] = limiter
	}
	b.mu.Unlock()

	allowed := limiter.Allow()
	return newResult(allowed, limiter.Tokens(), perSecond, burst), nil
}
