package payout

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/clipperpay/internal/payout/lock"
	"github.com/smallbiznis/clipperpay/internal/payout/repository"
	"github.com/smallbiznis/clipperpay/internal/payout/service"
	"go.uber.org/fx"
)

type lockParams struct {
	fx.In

	Redis *redis.Client `optional:"true"`
}

var Module = fx.Module("payout.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(p lockParams) lock.Locker { return lock.New(p.Redis) }),
	fx.Provide(service.New),
)
