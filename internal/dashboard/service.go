// Package dashboard serves the read-only creator and operator views.
package dashboard

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/clipperpay/internal/authorization"
	budgetdomain "github.com/smallbiznis/clipperpay/internal/budget/domain"
	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	"github.com/smallbiznis/clipperpay/internal/clock"
	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/smallbiznis/clipperpay/internal/earnings"
	payoutdomain "github.com/smallbiznis/clipperpay/internal/payout/domain"
	riskdomain "github.com/smallbiznis/clipperpay/internal/risk/domain"
	"go.uber.org/fx"
)

// CreatorSummary is what a creator sees. EstimatedCents covers this week's
// clips at the current rate and is zero while payouts are held.
type CreatorSummary struct {
	Aggregate      clipdomain.CreatorAggregate `json:"aggregate"`
	EstimatedCents int64                       `json:"estimated_earnings_cents"`
	Rate           earnings.Rate               `json:"rate"`
	Payouts        []payoutdomain.Record       `json:"payouts"`
}

type RiskRow struct {
	Score    riskdomain.RiskScore        `json:"score"`
	Throttle *riskdomain.CreatorThrottle `json:"throttle,omitempty"`
}

type WeekPayouts struct {
	WeekKey string                `json:"week_key"`
	Records []payoutdomain.Record `json:"records"`
	Run     *payoutdomain.Run     `json:"latest_run,omitempty"`
}

type Params struct {
	fx.In

	Clips    clipdomain.Service
	Budget   budgetdomain.Service
	Throttle riskdomain.ThrottleService
	Scoring  riskdomain.ScoringService
	Payouts  payoutdomain.Processor
	Cache    *AggregateCache
	Clock    clock.Clock
	Rules    *config.PayoutRulesHolder
	Authz    authorization.Service
}

type Service struct {
	clips    clipdomain.Service
	budget   budgetdomain.Service
	throttle riskdomain.ThrottleService
	scoring  riskdomain.ScoringService
	payouts  payoutdomain.Processor
	cache    *AggregateCache
	clock    clock.Clock
	rules    *config.PayoutRulesHolder
	authz    authorization.Service
}

func New(p Params) *Service {
	return &Service{
		clips:    p.Clips,
		budget:   p.Budget,
		throttle: p.Throttle,
		scoring:  p.Scoring,
		payouts:  p.Payouts,
		cache:    p.Cache,
		clock:    p.Clock,
		rules:    p.Rules,
		authz:    p.Authz,
	}
}

func (s *Service) aggregate(ctx context.Context, creatorID string) (*clipdomain.CreatorAggregate, error) {
	return s.cache.Load(ctx, creatorID, func(ctx context.Context) (*clipdomain.CreatorAggregate, error) {
		return s.clips.Aggregate(ctx, creatorID)
	})
}

func (s *Service) CreatorSummary(ctx context.Context, creatorID string) (*CreatorSummary, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return nil, clipdomain.ErrInvalidCreator
	}
	agg, err := s.aggregate(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	snap, err := s.throttle.Snapshot(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	rules := s.rules.Get()
	rate := earnings.ResolveRate(snap, rules)

	out := &CreatorSummary{Aggregate: *agg, Rate: rate}
	if !rate.Hold {
		clips, err := s.clips.ListAllByCreator(ctx, creatorID)
		if err != nil {
			return nil, err
		}
		calc := earnings.NewCalculator(rules)
		week := clock.WeekKey(s.clock.Now())
		for _, clip := range clips {
			if clip.WeekKey == week {
				out.EstimatedCents += calc.Clip(clip, rate.RPMCents)
			}
		}
	}
	if out.Payouts, err = s.payouts.ListCreatorRecords(ctx, creatorID); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) ListCreators(ctx context.Context, actor string) ([]clipdomain.CreatorAggregate, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, err
	}
	ids, err := s.clips.ListCreatorIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]clipdomain.CreatorAggregate, 0, len(ids))
	for _, id := range ids {
		agg, err := s.aggregate(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *agg)
	}
	return out, nil
}

func (s *Service) CreatorClips(ctx context.Context, actor string, req clipdomain.ListRequest) (*clipdomain.ListResponse, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, err
	}
	return s.clips.List(ctx, req)
}

// CurrentCycle carries the per-segment spend against limit.
func (s *Service) CurrentCycle(ctx context.Context, actor string) (budgetdomain.CycleView, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return budgetdomain.CycleView{}, err
	}
	return s.budget.CurrentCycle(ctx)
}

func (s *Service) Segments(ctx context.Context, actor string) ([]budgetdomain.Segment, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, err
	}
	return s.budget.ListSegments(ctx)
}

func (s *Service) RiskTable(ctx context.Context, actor string, minScore int) ([]RiskRow, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, err
	}
	scores, err := s.scoring.ListScores(ctx, minScore)
	if err != nil {
		return nil, err
	}
	throttles, err := s.throttle.ListCreatorThrottles(ctx)
	if err != nil {
		return nil, err
	}
	byCreator := make(map[string]riskdomain.CreatorThrottle, len(throttles))
	for _, t := range throttles {
		byCreator[t.CreatorID] = t
	}
	out := make([]RiskRow, 0, len(scores))
	for _, score := range scores {
		row := RiskRow{Score: score}
		if t, ok := byCreator[score.CreatorID]; ok {
			row.Throttle = &t
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *Service) Payouts(ctx context.Context, actor, weekKey string) (*WeekPayouts, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, err
	}
	records, err := s.payouts.ListRecords(ctx, weekKey)
	if err != nil {
		return nil, err
	}
	out := &WeekPayouts{WeekKey: weekKey, Records: records}
	run, err := s.payouts.LatestRun(ctx, weekKey)
	switch {
	case err == nil:
		out.Run = run
	case !errors.Is(err, payoutdomain.ErrRunNotFound):
		return nil, err
	}
	return out, nil
}

func (s *Service) authorize(ctx context.Context, actor string) error {
	return s.authz.Authorize(ctx, actor, authorization.ObjectDashboard, authorization.ActionDashboardView)
}
