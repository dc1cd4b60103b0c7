package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Counter ViewCounter
}

// Service resolves clip ids and fetches YouTube view counts behind a rate
// limiter and circuit breaker.
type Service struct {
	log     *zap.Logger
	counter ViewCounter
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

func New(p Params) *Service {
	log := p.Log.Named("verifier")
	yt := p.Config.YouTube

	limit := rate.Inf
	if yt.RequestsPerSec > 0 {
		limit = rate.Limit(yt.RequestsPerSec)
	}
	burst := yt.Burst
	if burst <= 0 {
		burst = 1
	}
	failures := yt.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	settings := gobreaker.Settings{
		Name:     "youtube",
		Interval: time.Minute,
		Timeout:  yt.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// a missing video is an answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrVideoNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("verifier.breaker.state_changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Service{
		log:     log,
		counter: p.Counter,
		limiter: rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
		timeout: yt.RequestTimeout,
	}
}

func (s *Service) ParseClipURL(platform clipdomain.Platform, rawURL string) (string, error) {
	return ParseClipURL(platform, rawURL)
}

func (s *Service) CanFetch(platform clipdomain.Platform) bool {
	return platform.IsYouTube()
}

func (s *Service) FetchViewCount(ctx context.Context, platform clipdomain.Platform, externalID string) (clipdomain.ViewSnapshot, error) {
	if !s.CanFetch(platform) {
		return clipdomain.ViewSnapshot{}, fmt.Errorf("%w: no api for %s", ErrUpstreamUnavailable, platform)
	}

	ctx, span := otel.Tracer("clipperpay/verifier").Start(ctx, "verifier.fetch_view_count")
	defer span.End()
	span.SetAttributes(
		attribute.String("platform", string(platform)),
		attribute.String("video_id", externalID),
	)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.limiter.Wait(ctx); err != nil {
		span.SetStatus(codes.Error, "rate limited")
		return clipdomain.ViewSnapshot{}, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.counter.VideoViews(ctx, externalID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		} else if !errors.Is(err, ErrVideoNotFound) && !errors.Is(err, ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Warn("verifier.upstream.failed",
			zap.String("video_id", externalID),
			zap.Error(err),
		)
		return clipdomain.ViewSnapshot{}, err
	}

	views := out.(int64)
	span.SetAttributes(attribute.Int64("view_count", views))
	return clipdomain.ViewSnapshot{ViewCount: views}, nil
}

var _ clipdomain.Verifier = (*Service)(nil)
