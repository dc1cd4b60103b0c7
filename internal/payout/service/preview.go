package service

import (
	"context"
	"fmt"

	"github.com/smallbiznis/clipperpay/internal/authorization"
	"github.com/smallbiznis/clipperpay/internal/earnings"
	"github.com/smallbiznis/clipperpay/internal/payout/domain"
)

// Preview computes provisional totals for the week at the current throttle
// state. Nothing is written and no milestone is claimed.
func (p *Processor) Preview(ctx context.Context, actor, weekKey string) (*domain.Preview, error) {
	if err := p.authz.Authorize(ctx, actor, authorization.ObjectPayout, authorization.ActionPayoutPreview); err != nil {
		return nil, err
	}
	week, err := validWeek(weekKey)
	if err != nil {
		return nil, err
	}
	creators, err := p.creatorsForWeek(ctx, week)
	if err != nil {
		return nil, err
	}

	rules := p.rules.Get()
	out := &domain.Preview{WeekKey: week, Lines: make([]domain.PreviewLine, 0, len(creators))}
	for _, creatorID := range creators {
		snap, err := p.throttle.Snapshot(ctx, creatorID)
		if err != nil {
			return nil, fmt.Errorf("throttle snapshot for %s: %w", creatorID, err)
		}
		rate := earnings.ResolveRate(snap, rules)
		f, err := p.compute(ctx, p.db, week, creatorID, rate, rules, false)
		if err != nil {
			return nil, fmt.Errorf("preview %s: %w", creatorID, err)
		}
		line := domain.PreviewLine{
			CreatorID:         creatorID,
			ClipsCount:        f.clips,
			NetViews:          f.netViews,
			BaseCents:         f.baseCents,
			BonusCents:        f.bonusCents,
			CarryInCents:      f.carryCents,
			GrossCents:        f.gross(),
			EffectiveRPMCents: rate.RPMCents,
			RateSource:        string(rate.Source),
			Held:              rate.Hold,
		}
		out.GrossCents += line.GrossCents
		out.Lines = append(out.Lines, line)
	}
	return out, nil
}
