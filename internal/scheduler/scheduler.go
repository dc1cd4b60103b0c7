package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	budgetdomain "github.com/smallbiznis/clipperpay/internal/budget/domain"
	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	"github.com/smallbiznis/clipperpay/internal/clock"
	obsmetrics "github.com/smallbiznis/clipperpay/internal/observability/metrics"
	payoutdomain "github.com/smallbiznis/clipperpay/internal/payout/domain"
	riskdomain "github.com/smallbiznis/clipperpay/internal/risk/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const (
	JobCycleRollover = "cycle_rollover"
	JobRecheckViews  = "recheck_views"
	JobRiskScoring   = "risk_scoring"
	JobFridayPayout  = "friday_payout"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  Config `optional:"true"`
	Clips   clipdomain.Service
	Scoring riskdomain.ScoringService
	Budget  budgetdomain.Service
	Payouts payoutdomain.Processor
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	clips   clipdomain.Service
	scoring riskdomain.ScoringService
	budget  budgetdomain.Service
	payouts payoutdomain.Processor

	mu         sync.Mutex
	lastScored time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Clips == nil || p.Scoring == nil || p.Budget == nil || p.Payouts == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		clips:   p.Clips,
		scoring: p.Scoring,
		budget:  p.Budget,
		payouts: p.Payouts,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the rest
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobCycleRollover, s.isJobEnabled(JobCycleRollover), func(ctx context.Context) error {
			return s.runJob(ctx, JobCycleRollover, 1, s.cfg.JobTimeout, s.CycleRolloverJob)
		}},
		{JobRecheckViews, s.isJobEnabled(JobRecheckViews), func(ctx context.Context) error {
			return s.runJob(ctx, JobRecheckViews, s.cfg.BatchSize, s.cfg.JobTimeout, s.RecheckViewsJob)
		}},
		{JobRiskScoring, s.isJobEnabled(JobRiskScoring) && s.scoringDue(), func(ctx context.Context) error {
			return s.runJob(ctx, JobRiskScoring, s.cfg.BatchSize, s.cfg.PayoutTimeout, s.RiskScoringJob)
		}},
		{JobFridayPayout, s.isJobEnabled(JobFridayPayout), func(ctx context.Context) error {
			return s.runJob(ctx, JobFridayPayout, 1, s.cfg.PayoutTimeout, s.FridayPayoutJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty means every job runs here (monolith mode)
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// scoringDue reports whether a full scoring pass should run on this tick.
func (s *Scheduler) scoringDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if !s.lastScored.IsZero() && now.Sub(s.lastScored) < s.cfg.ScoringInterval {
		return false
	}
	s.lastScored = now
	return true
}
