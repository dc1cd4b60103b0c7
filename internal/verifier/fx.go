package verifier

import (
	"context"

	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("verifier",
	fx.Provide(
		NewYouTubeCounter,
		New,
		NewQueue,
		func(s *Service) clipdomain.Verifier { return s },
		func(q *Queue) clipdomain.Enqueuer { return q },
	),
)

// WorkersModule runs queued verifications for the lifetime of the app.
var WorkersModule = fx.Module("verifier.workers",
	fx.Invoke(func(lc fx.Lifecycle, q *Queue, clips clipdomain.Service) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				q.Start(clips)
				return nil
			},
			OnStop: q.Stop,
		})
	}),
)
