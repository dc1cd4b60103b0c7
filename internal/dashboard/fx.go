package dashboard

import (
	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("dashboard",
	fx.Provide(NewAggregateCache),
	fx.Provide(func(c *AggregateCache) clipdomain.Invalidator { return c }),
	fx.Provide(New),
)
