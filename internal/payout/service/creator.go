package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clipperpay/internal/bonus"
	budgetdomain "github.com/smallbiznis/clipperpay/internal/budget/domain"
	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/smallbiznis/clipperpay/internal/earnings"
	"github.com/smallbiznis/clipperpay/internal/observability/logger"
	"github.com/smallbiznis/clipperpay/internal/observability/metrics"
	"github.com/smallbiznis/clipperpay/internal/payout/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// figures is the computed side of a payout before the budget clamp.
type figures struct {
	rate       earnings.Rate
	clips      int
	netViews   int64
	baseCents  int64
	bonusCents int64
	carryCents int64
	carryIDs   []snowflake.ID
}

func (f figures) gross() int64 {
	return f.baseCents + f.bonusCents + f.carryCents
}

// processCreator is one independent unit of work. It commits or rolls back
// on its own and never returns an error to the batch.
func (p *Processor) processCreator(ctx context.Context, runID, week, creatorID string, rules config.PayoutRules) domain.CreatorResult {
	ctx, span := otel.Tracer("clipperpay/payout").Start(ctx, "payout.creator")
	defer span.End()
	span.SetAttributes(attribute.String("creator_id", creatorID))
	log := logger.WithCreator(logger.WithWeek(logger.WithContext(ctx, p.log), week), creatorID)

	res, err := p.settleCreator(ctx, runID, week, creatorID, rules)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("payout.creator.failed", zap.Error(err))
		return domain.CreatorResult{CreatorID: creatorID, Result: domain.UpsertFailed, Error: err.Error()}
	}
	log.Info("payout.creator.settled",
		zap.String("result", string(res.Result)),
		zap.Int64("total_cents", res.TotalCents),
		zap.Int64("deferred_cents", res.DeferredCents),
	)
	return res
}

func (p *Processor) settleCreator(ctx context.Context, runID, week, creatorID string, rules config.PayoutRules) (domain.CreatorResult, error) {
	// the throttle is read once per creator so a toggle applies to the next computation
	snap, err := p.throttle.Snapshot(ctx, creatorID)
	if err != nil {
		return domain.CreatorResult{}, fmt.Errorf("throttle snapshot: %w", err)
	}
	rate := earnings.ResolveRate(snap, rules)

	out := domain.CreatorResult{CreatorID: creatorID}
	var addedPaid, holdDeferred int64
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := p.repo.LockRecord(ctx, tx, creatorID, week)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status == domain.RecordStatusPaid {
			out.Result = domain.UpsertAlreadyPaid
			out.TotalCents = existing.TotalCents
			out.DeferredCents = existing.DeferredCents
			return nil
		}

		f, err := p.compute(ctx, tx, week, creatorID, rate, rules, true)
		if err != nil {
			return err
		}
		now := p.clock.Now().UTC()
		if err := p.repo.ConsumeDeferrals(ctx, tx, f.carryIDs, week, now); err != nil {
			return err
		}

		gross := f.gross()
		desired := gross
		if rate.Hold {
			desired = 0
		}
		var charged int64
		if existing != nil {
			charged = existing.TotalCents
		}
		// money already charged for this record stays charged
		if desired > charged {
			charge, err := p.budget.ChargeTx(ctx, tx, budgetdomain.ChargeRequest{
				WeekKey:     week,
				SegmentCode: rules.ClipperSegment,
				AmountCents: desired - charged,
				Reference:   fmt.Sprintf("payout:%s:%s:%d", week, creatorID, charged),
			})
			if err != nil {
				return fmt.Errorf("charge budget: %w", err)
			}
			charged += charge.AppliedCents
			addedPaid = charge.AppliedCents
		}
		deferred := max(0, gross-charged)

		record := existing
		if record == nil {
			record = &domain.Record{
				ID:        p.genID.Generate(),
				CreatorID: creatorID,
				WeekKey:   week,
				Status:    domain.RecordStatusPending,
				CreatedAt: now,
			}
			out.Result = domain.UpsertCreated
		} else {
			out.Result = domain.UpsertUpdated
		}
		record.BaseCents = f.baseCents
		record.BonusCents = f.bonusCents
		record.CarryInCents = f.carryCents
		record.GrossCents = gross
		record.TotalCents = charged
		record.DeferredCents = deferred
		record.ClipsCount = f.clips
		record.NetViews = f.netViews
		record.EffectiveRPMCents = rate.RPMCents
		record.RateSource = string(rate.Source)
		record.ThrottleVersion = rate.ThrottleVersion
		record.Held = rate.Hold
		record.RunID = runID
		record.UpdatedAt = now
		if existing == nil {
			err = p.repo.InsertRecord(ctx, tx, record)
		} else {
			err = p.repo.SaveRecord(ctx, tx, record)
		}
		if err != nil {
			return err
		}

		reason := domain.DeferralBudget
		if rate.Hold {
			reason = domain.DeferralHold
			holdDeferred = deferred
		}
		if err := p.writeDeferral(ctx, tx, creatorID, week, deferred, reason, now); err != nil {
			return err
		}
		out.TotalCents = record.TotalCents
		out.DeferredCents = record.DeferredCents
		return nil
	})
	if err != nil {
		return domain.CreatorResult{}, err
	}
	metrics.Payout().AddPaidCents(addedPaid)
	metrics.Payout().AddDeferredCents(holdDeferred)
	return out, nil
}

// compute gathers base earnings, bonus and carry-in. With finalize set it
// stamps clip earnings and claims milestones inside tx.
func (p *Processor) compute(ctx context.Context, db *gorm.DB, week, creatorID string, rate earnings.Rate, rules config.PayoutRules, finalize bool) (figures, error) {
	f := figures{rate: rate}
	calc := earnings.NewCalculator(rules)

	clips, err := p.clips.ListByWeekAndCreators(ctx, db, week, []string{creatorID})
	if err != nil {
		return f, err
	}
	for _, clip := range clips {
		cents := calc.Clip(clip, rate.RPMCents)
		f.clips++
		f.netViews += clip.NetViews()
		f.baseCents += cents
		if finalize && cents > 0 {
			if err := p.clips.FinalizeEarnings(ctx, db, clip.ID, cents, week); err != nil {
				return f, fmt.Errorf("finalize clip %s: %w", clip.ID, err)
			}
		}
	}

	lifetime, err := p.clips.LifetimeNetViews(ctx, db, creatorID)
	if err != nil {
		return f, err
	}
	awards, err := p.awards.ListByCreator(ctx, db, creatorID)
	if err != nil {
		return f, err
	}
	due := bonus.EvaluateMilestones(lifetime, bonus.PaidElsewhere(awards, week), rules.BonusLadder)
	if finalize {
		now := p.clock.Now().UTC()
		for _, m := range due {
			if _, err := p.awards.Claim(ctx, db, creatorID, week, m.Views, m.AmountCents, now); err != nil {
				return f, fmt.Errorf("claim milestone %d: %w", m.Views, err)
			}
		}
		// a rerun of the week counts the awards this week already owns
		if awards, err = p.awards.ListByCreator(ctx, db, creatorID); err != nil {
			return f, err
		}
		for _, a := range awards {
			if a.WeekKey == week {
				f.bonusCents += a.AmountCents
			}
		}
	} else {
		f.bonusCents = bonus.Total(due)
	}

	carry, err := p.repo.ListCarryIn(ctx, db, creatorID, week)
	if err != nil {
		return f, err
	}
	for _, d := range carry {
		f.carryCents += d.AmountCents
		f.carryIDs = append(f.carryIDs, d.ID)
	}
	return f, nil
}

// writeDeferral keeps one deferral row per creator and source week. A row a
// later week already consumed is left alone.
func (p *Processor) writeDeferral(ctx context.Context, tx *gorm.DB, creatorID, week string, amount int64, reason domain.DeferralReason, now time.Time) error {
	existing, err := p.repo.FindDeferral(ctx, tx, creatorID, week)
	if err != nil {
		return err
	}
	switch {
	case existing != nil && existing.ConsumedWeek != "":
		return nil
	case existing != nil && amount == 0:
		return p.repo.DeleteDeferral(ctx, tx, existing.ID)
	case existing != nil:
		existing.AmountCents = amount
		existing.Reason = reason
		existing.UpdatedAt = now
		return p.repo.SaveDeferral(ctx, tx, existing)
	case amount > 0:
		return p.repo.InsertDeferral(ctx, tx, &domain.Deferral{
			ID:          p.genID.Generate(),
			CreatorID:   creatorID,
			SourceWeek:  week,
			AmountCents: amount,
			Reason:      reason,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return nil
}
