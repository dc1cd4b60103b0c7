package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/clipperpay/internal/authorization"
	"github.com/smallbiznis/clipperpay/internal/budget/domain"
	"github.com/smallbiznis/clipperpay/internal/budget/guard"
	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/smallbiznis/clipperpay/internal/observability/logger"
	"github.com/smallbiznis/clipperpay/internal/observability/metrics"
	"github.com/smallbiznis/clipperpay/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) RecordSpend(ctx context.Context, actor string, req domain.RecordSpendRequest) (domain.ChargeResult, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectBudget, authorization.ActionBudgetSpend); err != nil {
		return domain.ChargeResult{}, err
	}
	var out domain.ChargeResult
	var err error
	// the reference makes a replay safe, so a lost lock race is retried
	for attempt := 0; attempt < spendAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res, err := s.ChargeTx(ctx, tx, domain.ChargeRequest{
				WeekKey:     req.WeekKey,
				SegmentCode: req.SegmentCode,
				AmountCents: req.AmountCents,
				Reference:   req.Reference,
			})
			out = res
			return err
		})
		if !db.IsLockTimeoutErr(err) {
			break
		}
		s.log.Warn("budget.spend.lock_retry", zap.String("reference", req.Reference), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return out, err
}

const spendAttempts = 3

func (s *Service) ChargeTx(ctx context.Context, tx *gorm.DB, req domain.ChargeRequest) (domain.ChargeResult, error) {
	if req.AmountCents < 0 {
		return domain.ChargeResult{}, domain.ErrInvalidAmount
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return domain.ChargeResult{}, domain.ErrInvalidReference
	}
	code := slug.Make(req.SegmentCode)
	if code == "" {
		return domain.ChargeResult{}, domain.ErrInvalidSegmentCode
	}
	week, err := s.resolveWeek(req.WeekKey)
	if err != nil {
		return domain.ChargeResult{}, err
	}

	// cycle row first, then segment row; every writer takes them in this order
	cycle, err := s.repo.LockCycle(ctx, tx, week)
	if err != nil {
		return domain.ChargeResult{}, err
	}
	if cycle == nil {
		return domain.ChargeResult{}, domain.ErrCycleNotFound
	}
	if cycle.Status == domain.CycleStatusPaid {
		return domain.ChargeResult{}, domain.ErrCycleAlreadyPaid
	}
	segment, err := s.repo.FindSegmentByCode(ctx, tx, code)
	if err != nil {
		return domain.ChargeResult{}, err
	}
	if segment == nil {
		return domain.ChargeResult{}, domain.ErrSegmentNotFound
	}
	sc, err := s.lockSegmentCycle(ctx, tx, cycle, segment)
	if err != nil {
		return domain.ChargeResult{}, err
	}

	rules := s.rules.Get()
	if entry, err := s.repo.FindSpendEntry(ctx, tx, sc.ID, reference); err != nil {
		return domain.ChargeResult{}, err
	} else if entry != nil {
		return domain.ChargeResult{
			AppliedCents:  entry.AppliedCents,
			DeferredCents: entry.DeferredCents,
			Level:         levelFor(sc.SpentCents, sc.LimitCents, rules.Thresholds),
			Duplicate:     true,
		}, nil
	}

	applied := req.AmountCents
	if sc.FrozenAt != nil || cycle.Status == domain.CycleStatusFrozen {
		applied = 0
	}
	applied = min(applied, max(0, sc.LimitCents-sc.SpentCents))
	if cycle.GlobalLimitCents > 0 {
		applied = min(applied, max(0, cycle.GlobalLimitCents-cycle.GlobalSpentCents))
	}
	deferred := req.AmountCents - applied

	now := s.clock.Now().UTC()
	sc.SpentCents += applied
	sc.DeferredCents += deferred
	sc.UpdatedAt = now
	cycle.GlobalSpentCents += applied
	cycle.UpdatedAt = now

	crossed, err := s.applyThresholds(ctx, tx, cycle, sc, rules)
	if err != nil {
		return domain.ChargeResult{}, err
	}
	var moved []cycleMove
	if cycle.GlobalLimitCents > 0 && cycle.GlobalSpentCents >= cycle.GlobalLimitCents && guard.ShouldAutoFreeze(cycle.Status) {
		moved = append(moved, s.freezeCycle(cycle, "global weekly limit reached"))
	}
	if sc.FrozenAt != nil && guard.ShouldAutoFreeze(cycle.Status) {
		moved = append(moved, s.freezeCycle(cycle, fmt.Sprintf("segment %s reached its weekly limit", sc.SegmentCode)))
	}

	if err := s.repo.SaveSegmentCycle(ctx, tx, sc); err != nil {
		return domain.ChargeResult{}, err
	}
	if err := s.repo.SaveCycle(ctx, tx, cycle); err != nil {
		return domain.ChargeResult{}, err
	}
	if err := s.repo.InsertSpendEntry(ctx, tx, &domain.SpendEntry{
		ID:             s.genID.Generate(),
		SegmentCycleID: sc.ID,
		Reference:      reference,
		RequestedCents: req.AmountCents,
		AppliedCents:   applied,
		DeferredCents:  deferred,
		CreatedAt:      now,
	}); err != nil {
		return domain.ChargeResult{}, err
	}

	log := logger.WithWeek(logger.WithContext(ctx, s.log), week).With(zap.String("segment", sc.SegmentCode))
	for _, level := range crossed {
		metrics.Payout().IncThresholdCrossing(sc.SegmentCode, string(level))
		log.Warn("budget.threshold.crossed",
			zap.String("level", string(level)),
			zap.Int64("spent_cents", sc.SpentCents),
			zap.Int64("limit_cents", sc.LimitCents),
		)
	}
	if deferred > 0 {
		metrics.Payout().AddDeferredCents(deferred)
		log.Warn("budget.spend.deferred",
			zap.String("reference", reference),
			zap.Int64("amount_cents", req.AmountCents),
			zap.Int64("deferred_cents", deferred),
		)
	}
	metrics.Payout().SetSegmentUtilization(sc.SegmentCode, sc.SpentCents, sc.LimitCents)
	s.observeTransitions(ctx, authorization.ActorSystem, moved)

	return domain.ChargeResult{
		AppliedCents:  applied,
		DeferredCents: deferred,
		Level:         levelFor(sc.SpentCents, sc.LimitCents, rules.Thresholds),
	}, nil
}

// applyThresholds stamps each level the first time it is reached and returns
// the newly crossed ones.
func (s *Service) applyThresholds(ctx context.Context, tx *gorm.DB, cycle *domain.Cycle, sc *domain.SegmentCycle, rules config.PayoutRules) ([]domain.Level, error) {
	now := s.clock.Now().UTC()
	var crossed []domain.Level

	if sc.WarnedAt == nil && reached(sc.SpentCents, sc.LimitCents, rules.Thresholds.WarnPercent) {
		sc.WarnedAt = &now
		crossed = append(crossed, domain.LevelWarning)
	}
	if sc.ThrottledAt == nil && reached(sc.SpentCents, sc.LimitCents, rules.Thresholds.ThrottlePercent) {
		sc.ThrottledAt = &now
		crossed = append(crossed, domain.LevelThrottle)
		if s.throttler != nil {
			if _, err := s.throttler.ActivateGlobalTx(ctx, tx, authorization.ActorSystem, "budget:"+sc.SegmentCode); err != nil {
				return nil, fmt.Errorf("activate throttle for %s: %w", sc.SegmentCode, err)
			}
		}
	}
	if sc.FrozenAt == nil && reached(sc.SpentCents, sc.LimitCents, rules.Thresholds.FreezePercent) {
		sc.FrozenAt = &now
		crossed = append(crossed, domain.LevelFreeze)
	}
	return crossed, nil
}

func (s *Service) freezeCycle(cycle *domain.Cycle, reason string) cycleMove {
	now := s.clock.Now().UTC()
	from := cycle.Status
	cycle.Status = domain.CycleStatusFrozen
	cycle.FrozenAt = &now
	cycle.FrozenReason = reason
	return cycleMove{week: cycle.WeekKey, from: from, to: domain.CycleStatusFrozen}
}

// reached reports spent >= percent of limit. A zero limit is always exhausted.
func reached(spent, limit, percent int64) bool {
	if limit <= 0 {
		return true
	}
	return spent*100 >= limit*percent
}

func levelFor(spent, limit int64, t config.Thresholds) domain.Level {
	switch {
	case reached(spent, limit, t.FreezePercent):
		return domain.LevelFreeze
	case reached(spent, limit, t.ThrottlePercent):
		return domain.LevelThrottle
	case reached(spent, limit, t.WarnPercent):
		return domain.LevelWarning
	default:
		return domain.LevelNone
	}
}
