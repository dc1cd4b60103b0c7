package budget

import (
	"github.com/smallbiznis/clipperpay/internal/budget/domain"
	"github.com/smallbiznis/clipperpay/internal/budget/repository"
	"github.com/smallbiznis/clipperpay/internal/budget/service"
	riskdomain "github.com/smallbiznis/clipperpay/internal/risk/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("budget.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(t riskdomain.ThrottleService) domain.Throttler { return t }),
)
