package risk

import (
	"github.com/smallbiznis/clipperpay/internal/risk/repository"
	"github.com/smallbiznis/clipperpay/internal/risk/service"
	"go.uber.org/fx"
)

var Module = fx.Module("risk.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewThrottleService),
	fx.Provide(service.NewScoringService),
)
