// Package cache owns the optional redis connection and a JSON cache-aside helper.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/clipperpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
}

// NewRedisClient returns nil when REDIS_URL is unset or unreachable; callers
// fall back to in-process behavior.
func NewRedisClient(p Params) *redis.Client {
	log := p.Log.Named("redis")
	url := strings.TrimSpace(p.Config.RedisURL)
	if url == "" {
		log.Info("redis disabled")
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Warn("redis url invalid, disabled", zap.Error(err))
		return nil
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, disabled", zap.Error(err))
		_ = client.Close()
		return nil
	}
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error { return client.Close() },
		})
	}
	log.Info("redis connected", zap.String("addr", opts.Addr))
	return client
}

// JSON is a typed cache-aside store. A nil client turns every call into a miss.
type JSON[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewJSON[T any](client *redis.Client, prefix string, ttl time.Duration) *JSON[T] {
	return &JSON[T]{client: client, prefix: prefix, ttl: ttl}
}

func (c *JSON[T]) Enabled() bool {
	return c != nil && c.client != nil
}

func (c *JSON[T]) Key(id string) string {
	return c.prefix + ":" + id
}

func (c *JSON[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	if !c.Enabled() {
		return zero, false, nil
	}
	data, err := c.client.Get(ctx, c.Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, false, err
	}
	return out, true, nil
}

func (c *JSON[T]) Set(ctx context.Context, id string, value T) error {
	if !c.Enabled() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.Key(id), data, c.ttl).Err()
}

func (c *JSON[T]) Delete(ctx context.Context, id string) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Del(ctx, c.Key(id)).Err()
}

var Module = fx.Module("cache",
	fx.Provide(NewRedisClient),
)
