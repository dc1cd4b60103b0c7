package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/clipperpay/internal/authorization"
	"github.com/smallbiznis/clipperpay/internal/bonus"
	budgetdomain "github.com/smallbiznis/clipperpay/internal/budget/domain"
	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	"github.com/smallbiznis/clipperpay/internal/clock"
	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/smallbiznis/clipperpay/internal/observability/logger"
	"github.com/smallbiznis/clipperpay/internal/observability/metrics"
	"github.com/smallbiznis/clipperpay/internal/payout/domain"
	"github.com/smallbiznis/clipperpay/internal/payout/lock"
	riskdomain "github.com/smallbiznis/clipperpay/internal/risk/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const runLockTTL = 30 * time.Minute

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Clips    clipdomain.Repository
	Budget   budgetdomain.Service
	Throttle riskdomain.ThrottleService
	Awards   *bonus.Store
	Clock    clock.Clock
	Rules    *config.PayoutRulesHolder
	Authz    authorization.Service
	Locker   lock.Locker
}

type Processor struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	clips    clipdomain.Repository
	budget   budgetdomain.Service
	throttle riskdomain.ThrottleService
	awards   *bonus.Store
	clock    clock.Clock
	rules    *config.PayoutRulesHolder
	authz    authorization.Service
	locker   lock.Locker
	lockTTL  time.Duration
}

func New(p Params) domain.Processor {
	return &Processor{
		db:       p.DB,
		log:      p.Log.Named("payout.processor"),
		genID:    p.GenID,
		repo:     p.Repo,
		clips:    p.Clips,
		budget:   p.Budget,
		throttle: p.Throttle,
		awards:   p.Awards,
		clock:    p.Clock,
		rules:    p.Rules,
		authz:    p.Authz,
		locker:   p.Locker,
		lockTTL:  runLockTTL,
	}
}

// keepLock extends the run lock every third of its ttl until stop is called
// or the lock is lost.
func (p *Processor) keepLock(ctx context.Context, log *zap.Logger, key, token string) (stop func()) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(p.lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := p.locker.Extend(ctx, key, token, p.lockTTL)
				if err != nil {
					log.Warn("payout.run.lock_extend_failed", zap.Error(err))
					continue
				}
				if !ok {
					log.Error("payout.run.lock_lost", zap.String("lock_key", key))
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (p *Processor) RunWeeklyPayout(ctx context.Context, actor, weekKey string) (*domain.RunSummary, error) {
	if err := p.authz.Authorize(ctx, actor, authorization.ObjectPayout, authorization.ActionPayoutProcess); err != nil {
		return nil, err
	}
	week, err := validWeek(weekKey)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, actor, week, domain.RunKindFull, nil)
}

func (p *Processor) RetryFailed(ctx context.Context, actor, weekKey string) (*domain.RunSummary, error) {
	if err := p.authz.Authorize(ctx, actor, authorization.ObjectPayout, authorization.ActionPayoutRetry); err != nil {
		return nil, err
	}
	week, err := validWeek(weekKey)
	if err != nil {
		return nil, err
	}
	last, err := p.repo.LatestRun(ctx, p.db, week)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, domain.ErrRunNotFound
	}
	failed, err := decodeCreators(last.FailedCreators)
	if err != nil {
		return nil, fmt.Errorf("decode failed creators of run %s: %w", last.ID, err)
	}
	return p.run(ctx, actor, week, domain.RunKindRetry, failed)
}

func (p *Processor) run(ctx context.Context, actor, week string, kind domain.RunKind, only []string) (*domain.RunSummary, error) {
	ctx, span := otel.Tracer("clipperpay/payout").Start(ctx, "payout.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("week_key", week),
		attribute.String("kind", string(kind)),
	)
	log := logger.WithWeek(logger.WithContext(ctx, p.log), week)

	lockKey := "clipperpay:payout:" + week
	token, ok, err := p.locker.TryLock(ctx, lockKey, p.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		metrics.Payout().IncRun(metrics.RunResultRejected)
		return nil, domain.ErrRunInProgress
	}
	defer func() {
		if err := p.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			log.Warn("payout.run.unlock_failed", zap.Error(err))
		}
	}()
	stopKeepalive := p.keepLock(ctx, log, lockKey, token)
	defer stopKeepalive()

	cycle, err := p.budget.GetCycle(ctx, week)
	if err != nil {
		return nil, err
	}
	switch cycle.Status {
	case budgetdomain.CycleStatusPaid:
		return p.alreadyPaid(ctx, week)
	case budgetdomain.CycleStatusApproved:
	default:
		metrics.Payout().IncRun(metrics.RunResultRejected)
		log.Warn("payout.run.blocked", zap.String("cycle_status", string(cycle.Status)))
		return nil, budgetdomain.ErrCycleNotApproved
	}

	creators := only
	if kind == domain.RunKindFull {
		if creators, err = p.creatorsForWeek(ctx, week); err != nil {
			return nil, err
		}
	}

	now := p.clock.Now().UTC()
	run := &domain.Run{
		ID:             ulid.Make().String(),
		WeekKey:        week,
		Kind:           kind,
		Actor:          actor,
		Status:         domain.RunStatusRunning,
		FailedCreators: encodeCreators(nil),
		StartedAt:      now,
	}
	if err := p.repo.InsertRun(ctx, p.db, run); err != nil {
		return nil, err
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("payout.run.start", zap.Int("creators", len(creators)), zap.String("actor", actor))

	rules := p.rules.Get()
	results := make([]domain.CreatorResult, len(creators))
	var g errgroup.Group
	g.SetLimit(rules.PayoutConcurrency)
	for i, creatorID := range creators {
		g.Go(func() error {
			results[i] = p.processCreator(ctx, run.ID, week, creatorID, rules)
			return nil
		})
	}
	_ = g.Wait()

	summary := &domain.RunSummary{
		RunID:   run.ID,
		WeekKey: week,
		Results: results,
	}
	var failedIDs []string
	for _, res := range results {
		metrics.Payout().IncCreatorResult(string(res.Result))
		if res.Result == domain.UpsertFailed {
			summary.Failed = append(summary.Failed, res)
			failedIDs = append(failedIDs, res.CreatorID)
			continue
		}
		summary.Succeeded = append(summary.Succeeded, res.CreatorID)
		summary.ProcessedCreators++
		summary.TotalPaidCents += res.TotalCents
	}

	finished := p.clock.Now().UTC()
	run.ProcessedCreators = summary.ProcessedCreators
	run.FailedCount = len(failedIDs)
	run.TotalPaidCents = summary.TotalPaidCents
	run.FailedCreators = encodeCreators(failedIDs)
	run.FinishedAt = &finished

	var finishErr error
	if len(failedIDs) == 0 {
		if _, err := p.budget.MarkPaid(ctx, actor, week); err != nil {
			finishErr = fmt.Errorf("mark cycle paid: %w", err)
		} else if _, err := p.repo.MarkWeekPaid(ctx, p.db, week, finished); err != nil {
			finishErr = fmt.Errorf("mark records paid: %w", err)
		} else {
			summary.CyclePaid = true
		}
	} else {
		msg := fmt.Sprintf("%d creator(s) failed in run %s", len(failedIDs), run.ID)
		if err := p.budget.RecordRunError(ctx, week, msg); err != nil {
			log.Warn("payout.run.record_error_failed", zap.Error(err))
		}
	}

	switch {
	case finishErr != nil:
		run.Status = domain.RunStatusFailed
		run.Error = finishErr.Error()
	case len(failedIDs) > 0:
		run.Status = domain.RunStatusPartial
	default:
		run.Status = domain.RunStatusSucceeded
	}
	summary.Status = run.Status
	if err := p.repo.SaveRun(ctx, p.db, run); err != nil {
		finishErr = errors.Join(finishErr, fmt.Errorf("save run: %w", err))
	}

	if finishErr != nil {
		span.RecordError(finishErr)
		span.SetStatus(codes.Error, finishErr.Error())
		log.Error("payout.run.finish_failed", zap.Error(finishErr))
		return summary, finishErr
	}

	result := metrics.RunResultSucceeded
	if len(failedIDs) > 0 {
		result = metrics.RunResultPartial
		span.SetStatus(codes.Error, "partial run")
	}
	metrics.Payout().IncRun(result)
	span.SetAttributes(
		attribute.Int("processed_creators", summary.ProcessedCreators),
		attribute.Int("failed_creators", len(failedIDs)),
		attribute.Int64("total_paid_cents", summary.TotalPaidCents),
	)
	log.Info("payout.run.finish",
		zap.String("status", string(run.Status)),
		zap.Int("processed_creators", summary.ProcessedCreators),
		zap.Int("failed_creators", len(failedIDs)),
		zap.Int64("total_paid_cents", summary.TotalPaidCents),
	)
	return summary, nil
}

// alreadyPaid reports the stored records of a settled week without writing
// anything but the paid stamp on stragglers.
func (p *Processor) alreadyPaid(ctx context.Context, week string) (*domain.RunSummary, error) {
	if _, err := p.repo.MarkWeekPaid(ctx, p.db, week, p.clock.Now().UTC()); err != nil {
		return nil, err
	}
	records, err := p.repo.ListRecordsByWeek(ctx, p.db, week)
	if err != nil {
		return nil, err
	}
	summary := &domain.RunSummary{WeekKey: week, Status: domain.RunStatusSucceeded, CyclePaid: true}
	if last, err := p.repo.LatestRun(ctx, p.db, week); err == nil && last != nil {
		summary.RunID = last.ID
	}
	for _, r := range records {
		summary.Results = append(summary.Results, domain.CreatorResult{
			CreatorID:     r.CreatorID,
			Result:        domain.UpsertAlreadyPaid,
			TotalCents:    r.TotalCents,
			DeferredCents: r.DeferredCents,
		})
		summary.Succeeded = append(summary.Succeeded, r.CreatorID)
		summary.ProcessedCreators++
		summary.TotalPaidCents += r.TotalCents
	}
	return summary, nil
}

// creatorsForWeek is everyone with a clip submitted in the week or money
// carried in from an earlier one.
func (p *Processor) creatorsForWeek(ctx context.Context, week string) ([]string, error) {
	clips, err := p.clips.ListByWeek(ctx, p.db, week)
	if err != nil {
		return nil, err
	}
	carry, err := p.repo.ListCarryInCreators(ctx, p.db, week)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(clips)+len(carry))
	var out []string
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, c := range clips {
		add(c.CreatorID)
	}
	for _, id := range carry {
		add(id)
	}
	sort.Strings(out)
	return out, nil
}

func (p *Processor) ListRecords(ctx context.Context, weekKey string) ([]domain.Record, error) {
	week, err := validWeek(weekKey)
	if err != nil {
		return nil, err
	}
	return p.repo.ListRecordsByWeek(ctx, p.db, week)
}

func (p *Processor) ListCreatorRecords(ctx context.Context, creatorID string) ([]domain.Record, error) {
	return p.repo.ListRecordsByCreator(ctx, p.db, strings.TrimSpace(creatorID))
}

func (p *Processor) LatestRun(ctx context.Context, weekKey string) (*domain.Run, error) {
	week, err := validWeek(weekKey)
	if err != nil {
		return nil, err
	}
	run, err := p.repo.LatestRun(ctx, p.db, week)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, domain.ErrRunNotFound
	}
	return run, nil
}

func validWeek(weekKey string) (string, error) {
	weekKey = strings.TrimSpace(weekKey)
	if _, err := clock.ParseWeekKey(weekKey); err != nil {
		return "", domain.ErrInvalidWeekKey
	}
	return weekKey, nil
}

func encodeCreators(ids []string) datatypes.JSON {
	if ids == nil {
		ids = []string{}
	}
	data, _ := json.Marshal(ids)
	return datatypes.JSON(data)
}

func decodeCreators(raw datatypes.JSON) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
