package bonus

import "go.uber.org/fx"

var Module = fx.Module("bonus",
	fx.Provide(NewStore),
)
