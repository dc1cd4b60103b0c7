package clip

import (
	"github.com/smallbiznis/clipperpay/internal/clip/repository"
	"github.com/smallbiznis/clipperpay/internal/clip/service"
	"go.uber.org/fx"
)

var Module = fx.Module("clip.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
