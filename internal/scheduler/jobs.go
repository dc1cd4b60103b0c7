package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/clipperpay/internal/authorization"
	budgetdomain "github.com/smallbiznis/clipperpay/internal/budget/domain"
	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	"github.com/smallbiznis/clipperpay/internal/clock"
	obsmetrics "github.com/smallbiznis/clipperpay/internal/observability/metrics"
	payoutdomain "github.com/smallbiznis/clipperpay/internal/payout/domain"
	"go.uber.org/zap"
)

// payoutOffset is Friday of the week after the cycle week.
const payoutOffset = 11 * 24 * time.Hour

// CycleRolloverJob keeps exactly one open cycle, for the current week.
func (s *Scheduler) CycleRolloverJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobCycleRollover, 1)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	cycle, err := s.budget.EnsureOpenCycle(ctx, authorization.ActorSystem)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.cycle.rollover.failed", JobCycleRollover, err)
		return err
	}
	run.AddProcessed(1)
	s.logger(ctx).Debug("scheduler.cycle.open",
		zap.String("week_key", cycle.WeekKey),
		zap.String("status", string(cycle.Status)),
	)
	return nil
}

// RecheckViewsJob refreshes stale and unverified clips. Upstream failures are
// recorded on the clip and retried on a later tick.
func (s *Scheduler) RecheckViewsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRecheckViews, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	before := s.clock.Now().Add(-s.cfg.RecheckAfter)
	clips, err := s.clips.ListDueForRecheck(ctx, before, s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.recheck.list.failed", JobRecheckViews, err)
		return err
	}

	var jobErr error
	processed := 0
	for _, clip := range clips {
		if ctx.Err() != nil {
			jobErr = errors.Join(jobErr, ctx.Err())
			break
		}
		_, err := s.clips.Refresh(ctx, clip.ID)
		switch {
		case err == nil:
			processed++
		case errors.Is(err, clipdomain.ErrUpstreamUnavailable), errors.Is(err, clipdomain.ErrVideoNotFound):
			processed++
			s.logger(ctx).Warn("scheduler.recheck.deferred",
				zap.String("clip_id", clip.ID.String()),
				zap.Error(err),
			)
		default:
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(ctx, run, "scheduler.recheck.failed", JobRecheckViews, err,
				zap.String("clip_id", clip.ID.String()),
			)
		}
	}
	run.AddProcessed(processed)
	obsmetrics.Scheduler().AddBatchProcessed(JobRecheckViews, "clips", processed)
	return jobErr
}

// RiskScoringJob scores every creator and auto-throttles the high-risk band.
func (s *Scheduler) RiskScoringJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRiskScoring, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	result, err := s.scoring.ScoreAll(ctx, authorization.ActorSystem)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.risk.scoring.failed", JobRiskScoring, err)
		return err
	}
	run.AddProcessed(result.Scored)
	for i := 0; i < result.Failed; i++ {
		run.IncError()
	}
	obsmetrics.Scheduler().AddBatchProcessed(JobRiskScoring, "creators", result.Scored)
	s.logger(ctx).Info("scheduler.risk.scored",
		zap.Int("scored", result.Scored),
		zap.Int("flagged", result.Flagged),
		zap.Int("high_risk", result.HighRisk),
		zap.Int("throttled", result.Throttled),
		zap.Int("failed", result.Failed),
	)
	return nil
}

// FridayPayoutJob pays approved cycles once Friday of the following week has
// arrived. Cycles still waiting for approval are reported and left alone.
func (s *Scheduler) FridayPayoutJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobFridayPayout, 1)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	now := s.clock.Now()

	pending, err := s.budget.ListCycles(ctx, budgetdomain.CycleStatusPendingApproval)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.payout.list.failed", JobFridayPayout, err)
		return err
	}
	for _, cycle := range pending {
		if s.payoutDue(cycle.WeekKey, now) {
			s.logger(ctx).Warn("scheduler.payout.blocked",
				zap.String("week_key", cycle.WeekKey),
				zap.String("status", string(cycle.Status)),
			)
		}
	}

	approved, err := s.budget.ListCycles(ctx, budgetdomain.CycleStatusApproved)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.payout.list.failed", JobFridayPayout, err)
		return err
	}

	var jobErr error
	for _, cycle := range approved {
		if !s.payoutDue(cycle.WeekKey, now) {
			continue
		}
		summary, err := s.payouts.RunWeeklyPayout(ctx, authorization.ActorSystem, cycle.WeekKey)
		if errors.Is(err, payoutdomain.ErrRunInProgress) {
			continue
		}
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(ctx, run, "scheduler.payout.failed", JobFridayPayout, err,
				zap.String("week_key", cycle.WeekKey),
			)
			continue
		}
		run.AddProcessed(summary.ProcessedCreators)
		obsmetrics.Scheduler().AddBatchProcessed(JobFridayPayout, "creators", summary.ProcessedCreators)
		if len(summary.Failed) > 0 {
			run.IncError()
			s.logger(ctx).Warn("scheduler.payout.partial",
				zap.String("week_key", cycle.WeekKey),
				zap.String("payout_run_id", summary.RunID),
				zap.Int("failed", len(summary.Failed)),
			)
		}
	}
	return jobErr
}

func (s *Scheduler) payoutDue(weekKey string, now time.Time) bool {
	start, err := clock.ParseWeekKey(weekKey)
	if err != nil {
		return false
	}
	return !now.Before(start.Add(payoutOffset))
}
