package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/clipperpay/internal/authorization"
	"github.com/smallbiznis/clipperpay/internal/budget/domain"
	"github.com/smallbiznis/clipperpay/internal/budget/guard"
	"github.com/smallbiznis/clipperpay/internal/clock"
	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/smallbiznis/clipperpay/internal/observability/logger"
	"github.com/smallbiznis/clipperpay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Clock     clock.Clock
	Rules     *config.PayoutRulesHolder
	Authz     authorization.Service
	Throttler domain.Throttler
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	clock     clock.Clock
	rules     *config.PayoutRulesHolder
	authz     authorization.Service
	throttler domain.Throttler
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("budget.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		clock:     p.Clock,
		rules:     p.Rules,
		authz:     p.Authz,
		throttler: p.Throttler,
	}
}

type cycleMove struct {
	week string
	from domain.CycleStatus
	to   domain.CycleStatus
}

func (s *Service) EnsureDefaultSegments(ctx context.Context) error {
	now := s.clock.Now().UTC()
	for _, def := range s.rules.Get().Segments {
		code := slug.Make(def.Code)
		if code == "" {
			continue
		}
		name := strings.TrimSpace(def.Name)
		if name == "" {
			name = code
		}
		_, err := s.repo.InsertSegment(ctx, s.db, &domain.Segment{
			ID:               s.genID.Generate(),
			Code:             code,
			Name:             name,
			WeeklyLimitCents: def.WeeklyLimitCents,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
		if err != nil {
			return fmt.Errorf("seed segment %s: %w", code, err)
		}
	}
	return nil
}

func (s *Service) UpsertSegment(ctx context.Context, actor string, req domain.UpsertSegmentRequest) (domain.Segment, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectBudget, authorization.ActionBudgetManage); err != nil {
		return domain.Segment{}, err
	}
	code := slug.Make(req.Code)
	if code == "" {
		return domain.Segment{}, domain.ErrInvalidSegmentCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Segment{}, domain.ErrInvalidSegmentName
	}
	if req.WeeklyLimitCents < 0 {
		return domain.Segment{}, domain.ErrInvalidLimit
	}

	var out domain.Segment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		segment, err := s.repo.FindSegmentByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if segment == nil {
			segment = &domain.Segment{
				ID:               s.genID.Generate(),
				Code:             code,
				Name:             name,
				WeeklyLimitCents: req.WeeklyLimitCents,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if _, err := s.repo.InsertSegment(ctx, tx, segment); err != nil {
				return err
			}
		} else {
			segment.Name = name
			segment.WeeklyLimitCents = req.WeeklyLimitCents
			segment.UpdatedAt = now
			if err := s.repo.SaveSegment(ctx, tx, segment); err != nil {
				return err
			}
		}
		if err := s.applyLimitToCurrentCycle(ctx, tx, segment); err != nil {
			return err
		}
		out = *segment
		return nil
	})
	if err != nil {
		return domain.Segment{}, err
	}
	logger.WithContext(ctx, s.log).Info("budget.segment.upserted",
		zap.String("segment", code),
		zap.Int64("weekly_limit_cents", out.WeeklyLimitCents),
		zap.String("actor", actor),
	)
	return out, nil
}

// SetSegmentLimit is the manual override for an exhausted segment: raising
// the limit above current spend unfreezes the segment for this week.
func (s *Service) SetSegmentLimit(ctx context.Context, actor, code string, limitCents int64) (domain.Segment, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectBudget, authorization.ActionBudgetManage); err != nil {
		return domain.Segment{}, err
	}
	code = slug.Make(code)
	if code == "" {
		return domain.Segment{}, domain.ErrInvalidSegmentCode
	}
	if limitCents < 0 {
		return domain.Segment{}, domain.ErrInvalidLimit
	}

	var out domain.Segment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		segment, err := s.repo.FindSegmentByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if segment == nil {
			return domain.ErrSegmentNotFound
		}
		segment.WeeklyLimitCents = limitCents
		segment.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.SaveSegment(ctx, tx, segment); err != nil {
			return err
		}
		if err := s.applyLimitToCurrentCycle(ctx, tx, segment); err != nil {
			return err
		}
		out = *segment
		return nil
	})
	if err != nil {
		return domain.Segment{}, err
	}
	logger.WithContext(ctx, s.log).Info("budget.segment.limit_set",
		zap.String("segment", code),
		zap.Int64("weekly_limit_cents", limitCents),
		zap.String("actor", actor),
	)
	return out, nil
}

func (s *Service) applyLimitToCurrentCycle(ctx context.Context, tx *gorm.DB, segment *domain.Segment) error {
	cycle, err := s.repo.LockCycle(ctx, tx, clock.WeekKey(s.clock.Now()))
	if err != nil {
		return err
	}
	if cycle == nil || cycle.Status == domain.CycleStatusPaid {
		return nil
	}
	sc, err := s.lockSegmentCycle(ctx, tx, cycle, segment)
	if err != nil {
		return err
	}
	if segment.WeeklyLimitCents < sc.SpentCents {
		return domain.ErrLimitBelowSpend
	}
	sc.LimitCents = segment.WeeklyLimitCents
	if sc.FrozenAt != nil && !reached(sc.SpentCents, sc.LimitCents, s.rules.Get().Thresholds.FreezePercent) {
		sc.FrozenAt = nil
	}
	sc.UpdatedAt = s.clock.Now().UTC()
	return s.repo.SaveSegmentCycle(ctx, tx, sc)
}

func (s *Service) ListSegments(ctx context.Context) ([]domain.Segment, error) {
	return s.repo.ListSegments(ctx, s.db)
}

func (s *Service) EnsureOpenCycle(ctx context.Context, actor string) (domain.Cycle, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectCycle, authorization.ActionCycleRollover); err != nil {
		return domain.Cycle{}, err
	}
	now := s.clock.Now().UTC()
	week := clock.WeekKey(now)

	var out domain.Cycle
	var moved []cycleMove
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		open, err := s.repo.ListCyclesByStatus(ctx, tx, domain.CycleStatusOpen)
		if err != nil {
			return err
		}
		for i := range open {
			prior := open[i]
			if prior.WeekKey >= week {
				continue
			}
			prior.Status = domain.CycleStatusPendingApproval
			prior.SubmittedAt = &now
			prior.UpdatedAt = now
			if err := s.repo.SaveCycle(ctx, tx, &prior); err != nil {
				return err
			}
			moved = append(moved, cycleMove{week: prior.WeekKey, from: domain.CycleStatusOpen, to: domain.CycleStatusPendingApproval})
		}

		cycle, err := s.repo.FindCycle(ctx, tx, week)
		if err != nil {
			return err
		}
		if cycle == nil {
			cycle = &domain.Cycle{
				ID:               s.genID.Generate(),
				WeekKey:          week,
				Status:           domain.CycleStatusOpen,
				GlobalLimitCents: s.rules.Get().GlobalWeeklyLimitCents,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			inserted, err := s.repo.InsertCycle(ctx, tx, cycle)
			if err != nil {
				return err
			}
			if !inserted {
				if cycle, err = s.repo.FindCycle(ctx, tx, week); err != nil {
					return err
				}
			} else {
				moved = append(moved, cycleMove{week: week, from: "", to: domain.CycleStatusOpen})
			}
		}
		if err := s.ensureSegmentCycles(ctx, tx, cycle); err != nil {
			return err
		}
		out = *cycle
		return nil
	})
	if err != nil {
		return domain.Cycle{}, err
	}
	s.observeTransitions(ctx, actor, moved)
	return out, nil
}

func (s *Service) ensureSegmentCycles(ctx context.Context, tx *gorm.DB, cycle *domain.Cycle) error {
	segments, err := s.repo.ListSegments(ctx, tx)
	if err != nil {
		return err
	}
	for i := range segments {
		if _, err := s.lockSegmentCycle(ctx, tx, cycle, &segments[i]); err != nil {
			return err
		}
	}
	return nil
}

// lockSegmentCycle returns the locked row, creating it with the segment's
// current limit when the segment joined after the cycle opened.
func (s *Service) lockSegmentCycle(ctx context.Context, tx *gorm.DB, cycle *domain.Cycle, segment *domain.Segment) (*domain.SegmentCycle, error) {
	sc, err := s.repo.LockSegmentCycle(ctx, tx, cycle.ID, segment.ID)
	if err != nil {
		return nil, err
	}
	if sc != nil {
		return sc, nil
	}
	now := s.clock.Now().UTC()
	if _, err := s.repo.InsertSegmentCycle(ctx, tx, &domain.SegmentCycle{
		ID:          s.genID.Generate(),
		CycleID:     cycle.ID,
		SegmentID:   segment.ID,
		SegmentCode: segment.Code,
		LimitCents:  segment.WeeklyLimitCents,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		return nil, err
	}
	return s.repo.LockSegmentCycle(ctx, tx, cycle.ID, segment.ID)
}

func (s *Service) GetCycle(ctx context.Context, weekKey string) (domain.Cycle, error) {
	week, err := s.resolveWeek(weekKey)
	if err != nil {
		return domain.Cycle{}, err
	}
	cycle, err := s.repo.FindCycle(ctx, s.db, week)
	if err != nil {
		return domain.Cycle{}, err
	}
	if cycle == nil {
		return domain.Cycle{}, domain.ErrCycleNotFound
	}
	return *cycle, nil
}

// CurrentCycle reads this week's cycle, falling back to the latest open one.
func (s *Service) CurrentCycle(ctx context.Context) (domain.CycleView, error) {
	week := clock.WeekKey(s.clock.Now())
	cycle, err := s.repo.FindCycle(ctx, s.db, week)
	if err != nil {
		return domain.CycleView{}, err
	}
	if cycle == nil {
		open, err := s.repo.ListCyclesByStatus(ctx, s.db, domain.CycleStatusOpen)
		if err != nil {
			return domain.CycleView{}, err
		}
		if len(open) == 0 {
			return domain.CycleView{}, domain.ErrCycleNotFound
		}
		cycle = &open[0]
	}
	return s.view(ctx, cycle)
}

func (s *Service) CycleView(ctx context.Context, weekKey string) (domain.CycleView, error) {
	cycle, err := s.GetCycle(ctx, weekKey)
	if err != nil {
		return domain.CycleView{}, err
	}
	return s.view(ctx, &cycle)
}

func (s *Service) view(ctx context.Context, cycle *domain.Cycle) (domain.CycleView, error) {
	segments, err := s.repo.ListSegments(ctx, s.db)
	if err != nil {
		return domain.CycleView{}, err
	}
	rows, err := s.repo.ListSegmentCycles(ctx, s.db, cycle.ID)
	if err != nil {
		return domain.CycleView{}, err
	}
	byID := make(map[snowflake.ID]domain.SegmentCycle, len(rows))
	for _, row := range rows {
		byID[row.SegmentID] = row
	}

	thresholds := s.rules.Get().Thresholds
	view := domain.CycleView{Cycle: *cycle, Segments: make([]domain.SegmentUsage, 0, len(segments))}
	for _, segment := range segments {
		sc, ok := byID[segment.ID]
		if !ok {
			sc = domain.SegmentCycle{LimitCents: segment.WeeklyLimitCents}
		}
		usage := domain.SegmentUsage{
			Code:           segment.Code,
			Name:           segment.Name,
			LimitCents:     sc.LimitCents,
			SpentCents:     sc.SpentCents,
			DeferredCents:  sc.DeferredCents,
			RemainingCents: max(0, sc.LimitCents-sc.SpentCents),
			Level:          levelFor(sc.SpentCents, sc.LimitCents, thresholds),
			Frozen:         sc.FrozenAt != nil,
		}
		if sc.LimitCents > 0 {
			usage.UtilizationPercent = sc.SpentCents * 100 / sc.LimitCents
		}
		view.Segments = append(view.Segments, usage)
	}
	return view, nil
}

func (s *Service) ListCycles(ctx context.Context, status domain.CycleStatus) ([]domain.Cycle, error) {
	return s.repo.ListCyclesByStatus(ctx, s.db, status)
}

func (s *Service) Submit(ctx context.Context, actor, weekKey string) (domain.Cycle, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectCycle, authorization.ActionCycleSubmit); err != nil {
		return domain.Cycle{}, err
	}
	return s.transition(ctx, actor, weekKey, func(cycle *domain.Cycle) error {
		if err := guard.EnsureCanSubmit(cycle.Status); err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		cycle.Status = domain.CycleStatusPendingApproval
		cycle.SubmittedAt = &now
		return nil
	})
}

func (s *Service) Approve(ctx context.Context, actor, weekKey string) (domain.Cycle, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectCycle, authorization.ActionCycleApprove); err != nil {
		return domain.Cycle{}, err
	}
	return s.transition(ctx, actor, weekKey, func(cycle *domain.Cycle) error {
		if err := guard.EnsureCanApprove(cycle.Status, actor); err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		cycle.Status = domain.CycleStatusApproved
		cycle.ApprovedAt = &now
		cycle.ApprovedBy = actor
		return nil
	})
}

// Freeze is the emergency stop. It applies regardless of spend; a frozen
// cycle is returned unchanged.
func (s *Service) Freeze(ctx context.Context, actor, weekKey, reason string) (domain.Cycle, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectCycle, authorization.ActionCycleFreeze); err != nil {
		return domain.Cycle{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manual freeze"
	}
	return s.transition(ctx, actor, weekKey, func(cycle *domain.Cycle) error {
		if err := guard.EnsureCanFreeze(cycle.Status); err != nil {
			return err
		}
		if cycle.Status == domain.CycleStatusFrozen {
			return nil
		}
		now := s.clock.Now().UTC()
		cycle.Status = domain.CycleStatusFrozen
		cycle.FrozenAt = &now
		cycle.FrozenReason = reason
		return nil
	})
}

func (s *Service) Unfreeze(ctx context.Context, actor, weekKey string) (domain.Cycle, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectCycle, authorization.ActionCycleUnfreeze); err != nil {
		return domain.Cycle{}, err
	}
	return s.transition(ctx, actor, weekKey, func(cycle *domain.Cycle) error {
		if err := guard.EnsureCanUnfreeze(cycle.Status); err != nil {
			return err
		}
		cycle.Status = domain.CycleStatusPendingApproval
		cycle.FrozenReason = ""
		return nil
	})
}

func (s *Service) MarkPaid(ctx context.Context, actor, weekKey string) (domain.Cycle, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectPayout, authorization.ActionPayoutProcess); err != nil {
		return domain.Cycle{}, err
	}
	return s.transition(ctx, actor, weekKey, func(cycle *domain.Cycle) error {
		if err := guard.EnsureCanPay(cycle.Status); err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		cycle.Status = domain.CycleStatusPaid
		cycle.PaidAt = &now
		cycle.LastError = ""
		return nil
	})
}

func (s *Service) RecordRunError(ctx context.Context, weekKey, message string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cycle, err := s.repo.LockCycle(ctx, tx, weekKey)
		if err != nil {
			return err
		}
		if cycle == nil {
			return domain.ErrCycleNotFound
		}
		cycle.LastError = message
		cycle.UpdatedAt = s.clock.Now().UTC()
		return s.repo.SaveCycle(ctx, tx, cycle)
	})
}

func (s *Service) transition(ctx context.Context, actor, weekKey string, mutate func(*domain.Cycle) error) (domain.Cycle, error) {
	week, err := s.resolveWeek(weekKey)
	if err != nil {
		return domain.Cycle{}, err
	}

	var out domain.Cycle
	var moved []cycleMove
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cycle, err := s.repo.LockCycle(ctx, tx, week)
		if err != nil {
			return err
		}
		if cycle == nil {
			return domain.ErrCycleNotFound
		}
		from := cycle.Status
		if err := mutate(cycle); err != nil {
			return err
		}
		if cycle.Status != from {
			if !guard.CanTransition(from, cycle.Status) {
				return domain.ErrInvalidTransition
			}
			cycle.UpdatedAt = s.clock.Now().UTC()
			if err := s.repo.SaveCycle(ctx, tx, cycle); err != nil {
				return err
			}
			moved = append(moved, cycleMove{week: week, from: from, to: cycle.Status})
		}
		out = *cycle
		return nil
	})
	if err != nil {
		return domain.Cycle{}, err
	}
	s.observeTransitions(ctx, actor, moved)
	return out, nil
}

func (s *Service) observeTransitions(ctx context.Context, actor string, moved []cycleMove) {
	log := logger.WithContext(ctx, s.log)
	for _, t := range moved {
		from := string(t.from)
		if from == "" {
			from = "none"
		}
		metrics.Scheduler().IncCycleTransition(from, string(t.to))
		logger.WithWeek(log, t.week).Info("budget.cycle.transitioned",
			zap.String("from", from),
			zap.String("to", string(t.to)),
			zap.String("actor", actor),
		)
	}
}

func (s *Service) resolveWeek(weekKey string) (string, error) {
	weekKey = strings.TrimSpace(weekKey)
	if weekKey == "" {
		return clock.WeekKey(s.clock.Now()), nil
	}
	if _, err := clock.ParseWeekKey(weekKey); err != nil {
		return "", domain.ErrInvalidWeekKey
	}
	return weekKey, nil
}
