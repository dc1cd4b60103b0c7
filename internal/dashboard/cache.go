package dashboard

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/clipperpay/internal/cache"
	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	"github.com/smallbiznis/clipperpay/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const aggregateTTL = time.Minute

type CacheParams struct {
	fx.In

	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

// AggregateCache holds creator aggregates. Entries are dropped whenever a
// clip of the creator changes, so a cached value always matches a rescan
// up to the TTL.
type AggregateCache struct {
	log    *zap.Logger
	values *cache.JSON[clipdomain.CreatorAggregate]
}

func NewAggregateCache(p CacheParams) *AggregateCache {
	return &AggregateCache{
		log:    p.Log.Named("dashboard.cache"),
		values: cache.NewJSON[clipdomain.CreatorAggregate](p.Redis, "clipperpay:creator_aggregate", aggregateTTL),
	}
}

// Load returns the cached aggregate or computes and stores it. Cache errors
// fall through to the computed value.
func (c *AggregateCache) Load(ctx context.Context, creatorID string, compute func(context.Context) (*clipdomain.CreatorAggregate, error)) (*clipdomain.CreatorAggregate, error) {
	log := logger.WithCreator(logger.WithContext(ctx, c.log), creatorID)
	if agg, ok, err := c.values.Get(ctx, creatorID); err != nil {
		log.Warn("dashboard.cache.get_failed", zap.Error(err))
	} else if ok {
		return &agg, nil
	}
	agg, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.values.Set(ctx, creatorID, *agg); err != nil {
		log.Warn("dashboard.cache.set_failed", zap.Error(err))
	}
	return agg, nil
}

func (c *AggregateCache) Invalidate(ctx context.Context, creatorID string) {
	if err := c.values.Delete(ctx, creatorID); err != nil {
		logger.WithCreator(logger.WithContext(ctx, c.log), creatorID).Warn("dashboard.cache.invalidate_failed", zap.Error(err))
	}
}

var _ clipdomain.Invalidator = (*AggregateCache)(nil)
