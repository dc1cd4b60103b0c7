package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clipperpay/internal/authorization"
	"github.com/smallbiznis/clipperpay/internal/bonus"
	budgetdomain "github.com/smallbiznis/clipperpay/internal/budget/domain"
	budgetrepo "github.com/smallbiznis/clipperpay/internal/budget/repository"
	budgetservice "github.com/smallbiznis/clipperpay/internal/budget/service"
	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	cliprepo "github.com/smallbiznis/clipperpay/internal/clip/repository"
	"github.com/smallbiznis/clipperpay/internal/clock"
	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/smallbiznis/clipperpay/internal/payout/domain"
	"github.com/smallbiznis/clipperpay/internal/payout/lock"
	"github.com/smallbiznis/clipperpay/internal/payout/repository"
	riskdomain "github.com/smallbiznis/clipperpay/internal/risk/domain"
	riskrepo "github.com/smallbiznis/clipperpay/internal/risk/repository"
	riskservice "github.com/smallbiznis/clipperpay/internal/risk/service"
	"github.com/smallbiznis/clipperpay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	finance = "operator:fin"
	analyst = "operator:rhea"
	viewer  = "operator:vic"
	week    = "2026-W42"
)

// flakyBudget fails charges for the listed creators.
type flakyBudget struct {
	budgetdomain.Service
	failing map[string]bool
}

func (b *flakyBudget) ChargeTx(ctx context.Context, tx *gorm.DB, req budgetdomain.ChargeRequest) (budgetdomain.ChargeResult, error) {
	for creator, fail := range b.failing {
		if fail && strings.Contains(req.Reference, ":"+creator+":") {
			return budgetdomain.ChargeResult{}, fmt.Errorf("injected failure for %s", creator)
		}
	}
	return b.Service.ChargeTx(ctx, tx, req)
}

type fixture struct {
	db        *gorm.DB
	clock     *clock.FakeClock
	budget    budgetdomain.Service
	flaky     *flakyBudget
	throttle  riskdomain.ThrottleService
	clipRepo  clipdomain.Repository
	repo      domain.Repository
	awards    *bonus.Store
	locker    lock.Locker
	processor domain.Processor
	node      *snowflake.Node
	seq       atomic.Int64
}

func newFixture(t *testing.T, clipperLimit int64) *fixture {
	t.Helper()
	conn := testutil.OpenDB(t,
		&clipdomain.Clip{},
		&budgetdomain.Segment{}, &budgetdomain.Cycle{}, &budgetdomain.SegmentCycle{}, &budgetdomain.SpendEntry{},
		&riskdomain.GlobalThrottle{}, &riskdomain.CreatorThrottle{}, &riskdomain.RiskScore{},
		&bonus.Award{},
		&domain.Record{}, &domain.Deferral{}, &domain.Run{},
	)
	rules := config.DefaultPayoutRules()
	rules.GlobalWeeklyLimitCents = 0
	rules.Segments = []config.SegmentDefault{{Code: "clipper-payouts", Name: "Clipper payouts", WeeklyLimitCents: clipperLimit}}
	holder := config.NewStaticPayoutRules(rules)
	authz := testutil.Authz(t, map[string]string{"fin": "finance", "rhea": "risk", "vic": "viewer"})
	node := testutil.Snowflake(t)

	f := &fixture{
		db:       conn,
		clock:    clock.NewFakeClock(time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)),
		clipRepo: cliprepo.Provide(),
		repo:     repository.Provide(),
		awards:   bonus.NewStore(node),
		locker:   lock.NewLocal(),
		node:     node,
	}
	f.throttle = riskservice.NewThrottleService(riskservice.ThrottleParams{
		DB: conn, Log: zap.NewNop(), Repo: riskrepo.Provide(), Clock: f.clock, Authz: authz,
	})
	f.budget = budgetservice.New(budgetservice.Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Repo: budgetrepo.Provide(), Clock: f.clock,
		Rules: holder, Authz: authz, Throttler: f.throttle,
	})
	f.flaky = &flakyBudget{Service: f.budget, failing: map[string]bool{}}
	f.processor = New(Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Repo: f.repo, Clips: f.clipRepo,
		Budget: f.flaky, Throttle: f.throttle, Awards: f.awards, Clock: f.clock,
		Rules: holder, Authz: authz, Locker: f.locker,
	})

	ctx := context.Background()
	require.NoError(t, f.budget.EnsureDefaultSegments(ctx))
	_, err := f.budget.EnsureOpenCycle(ctx, authorization.ActorSystem)
	require.NoError(t, err)
	return f
}

func (f *fixture) addClip(t *testing.T, creatorID, weekKey string, baseline, views int64) {
	t.Helper()
	start, err := clock.ParseWeekKey(weekKey)
	require.NoError(t, err)
	n := f.seq.Add(1)
	now := start.Add(time.Hour)
	require.NoError(t, f.clipRepo.Insert(context.Background(), f.db, &clipdomain.Clip{
		ID:                f.node.Generate(),
		CreatorID:         creatorID,
		Platform:          clipdomain.PlatformYouTube,
		ExternalURL:       fmt.Sprintf("https://youtu.be/clip%07d", n),
		ExternalID:        fmt.Sprintf("clip%07d", n),
		ExternalKey:       fmt.Sprintf("youtube:clip%07d", n),
		ViewCount:         views,
		BaselineViewCount: baseline,
		BaselineCaptured:  true,
		Status:            clipdomain.StatusVerified,
		SubmittedAt:       now,
		WeekKey:           weekKey,
		VerifiedAt:        &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}))
}

// closeWeek rolls the clock into the following week and approves weekKey.
func (f *fixture) closeWeek(t *testing.T, weekKey string) {
	t.Helper()
	start, err := clock.ParseWeekKey(weekKey)
	require.NoError(t, err)
	f.clock.Set(start.AddDate(0, 0, 11))
	ctx := context.Background()
	_, err = f.budget.EnsureOpenCycle(ctx, authorization.ActorSystem)
	require.NoError(t, err)
	_, err = f.budget.Approve(ctx, finance, weekKey)
	require.NoError(t, err)
}

func (f *fixture) record(t *testing.T, creatorID, weekKey string) domain.Record {
	t.Helper()
	r, err := f.repo.LockRecord(context.Background(), f.db, creatorID, weekKey)
	require.NoError(t, err)
	require.NotNil(t, r)
	return *r
}

func (f *fixture) clipperSpent(t *testing.T, weekKey string) int64 {
	t.Helper()
	view, err := f.budget.CycleView(context.Background(), weekKey)
	require.NoError(t, err)
	for _, seg := range view.Segments {
		if seg.Code == "clipper-payouts" {
			return seg.SpentCents
		}
	}
	t.Fatalf("clipper segment missing")
	return 0
}

func TestRunPaysCreatorsAndClosesCycle(t *testing.T) {
	f := newFixture(t, 1_000_000)
	f.addClip(t, "alice", week, 1_000, 51_000)
	f.addClip(t, "bob", week, 0, 10_000)
	f.addClip(t, "bob", week, 0, 10_000)
	f.closeWeek(t, week)

	summary, err := f.processor.RunWeeklyPayout(context.Background(), authorization.ActorSystem, week)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, summary.Status)
	assert.Equal(t, 2, summary.ProcessedCreators)
	assert.Equal(t, int64(1_100+222+222), summary.TotalPaidCents)
	assert.Empty(t, summary.Failed)
	assert.True(t, summary.CyclePaid)

	alice := f.record(t, "alice", week)
	assert.Equal(t, domain.RecordStatusPaid, alice.Status)
	assert.Equal(t, int64(1_100), alice.BaseCents)
	assert.Equal(t, int64(50_000), alice.NetViews)
	assert.Equal(t, int64(22), alice.EffectiveRPMCents)
	assert.Equal(t, "default", alice.RateSource)

	bob := f.record(t, "bob", week)
	assert.Equal(t, 2, bob.ClipsCount)
	assert.Equal(t, int64(444), bob.TotalCents)

	cycle, err := f.budget.GetCycle(context.Background(), week)
	require.NoError(t, err)
	assert.Equal(t, budgetdomain.CycleStatusPaid, cycle.Status)
	assert.Equal(t, int64(1_544), f.clipperSpent(t, week))
}

func TestRunRequiresApprovedCycle(t *testing.T) {
	f := newFixture(t, 1_000_000)
	f.addClip(t, "alice", week, 1_000, 51_000)

	_, err := f.processor.RunWeeklyPayout(context.Background(), authorization.ActorSystem, week)
	assert.ErrorIs(t, err, budgetdomain.ErrCycleNotApproved)

	_, err = f.processor.RunWeeklyPayout(context.Background(), viewer, week)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = f.processor.RunWeeklyPayout(context.Background(), authorization.ActorSystem, "42")
	assert.ErrorIs(t, err, domain.ErrInvalidWeekKey)
}

func TestRerunIsIdempotent(t *testing.T) {
	f := newFixture(t, 1_000_000)
	f.addClip(t, "alice", week, 1_000, 51_000)
	f.closeWeek(t, week)
	ctx := context.Background()

	first, err := f.processor.RunWeeklyPayout(ctx, finance, week)
	require.NoError(t, err)
	before := f.record(t, "alice", week)

	second, err := f.processor.RunWeeklyPayout(ctx, finance, week)
	require.NoError(t, err)
	after := f.record(t, "alice", week)

	assert.Equal(t, first.TotalPaidCents, second.TotalPaidCents)
	require.Len(t, second.Results, 1)
	assert.Equal(t, domain.UpsertAlreadyPaid, second.Results[0].Result)
	assert.Equal(t, before, after)
	assert.Equal(t, int64(1_100), f.clipperSpent(t, week))

	records, err := f.processor.ListRecords(ctx, week)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestBonusMilestonesPayOnceEver(t *testing.T) {
	f := newFixture(t, 10_000_000)
	f.addClip(t, "dana", "2026-W41", 0, 1_200_000)
	f.addClip(t, "dana", week, 0, 1_000)
	f.closeWeek(t, week)
	ctx := context.Background()

	_, err := f.processor.RunWeeklyPayout(ctx, authorization.ActorSystem, week)
	require.NoError(t, err)
	rec := f.record(t, "dana", week)
	assert.Equal(t, int64(11_100+44_400+111_100), rec.BonusCents)
	assert.Equal(t, int64(222), rec.BaseCents)
	assert.Equal(t, int64(166_600+222), rec.TotalCents)

	awards, err := f.awards.ListByCreator(ctx, f.db, "dana")
	require.NoError(t, err)
	assert.Len(t, awards, 3)

	f.addClip(t, "dana", "2026-W43", 0, 1_000)
	preview, err := f.processor.Preview(ctx, finance, "2026-W43")
	require.NoError(t, err)
	require.Len(t, preview.Lines, 1)
	assert.Zero(t, preview.Lines[0].BonusCents)
}

func TestBudgetClampDefersIntoNextWeek(t *testing.T) {
	f := newFixture(t, 1_000)
	f.addClip(t, "alice", week, 1_000, 51_000)
	f.closeWeek(t, week)
	ctx := context.Background()

	summary, err := f.processor.RunWeeklyPayout(ctx, authorization.ActorSystem, week)
	require.NoError(t, err)
	assert.True(t, summary.CyclePaid)

	rec := f.record(t, "alice", week)
	assert.Equal(t, int64(1_100), rec.GrossCents)
	assert.Equal(t, int64(1_000), rec.TotalCents)
	assert.Equal(t, int64(100), rec.DeferredCents)
	assert.LessOrEqual(t, f.clipperSpent(t, week), int64(1_000))

	deferral, err := f.repo.FindDeferral(ctx, f.db, "alice", week)
	require.NoError(t, err)
	require.NotNil(t, deferral)
	assert.Equal(t, domain.DeferralBudget, deferral.Reason)

	f.closeWeek(t, "2026-W43")
	_, err = f.processor.RunWeeklyPayout(ctx, authorization.ActorSystem, "2026-W43")
	require.NoError(t, err)

	next := f.record(t, "alice", "2026-W43")
	assert.Equal(t, int64(100), next.CarryInCents)
	assert.Equal(t, int64(100), next.TotalCents)
	assert.Zero(t, next.DeferredCents)

	deferral, err = f.repo.FindDeferral(ctx, f.db, "alice", week)
	require.NoError(t, err)
	assert.Equal(t, "2026-W43", deferral.ConsumedWeek)
}

func TestCreatorHoldDefersWholeAmount(t *testing.T) {
	f := newFixture(t, 1_000_000)
	f.addClip(t, "eve", week, 1_000, 51_000)
	ctx := context.Background()
	_, err := f.throttle.SetCreator(ctx, analyst, riskdomain.SetCreatorRequest{CreatorID: "eve", Mode: riskdomain.ThrottleHold, Reason: "manual review"})
	require.NoError(t, err)
	f.closeWeek(t, week)

	_, err = f.processor.RunWeeklyPayout(ctx, authorization.ActorSystem, week)
	require.NoError(t, err)

	rec := f.record(t, "eve", week)
	assert.True(t, rec.Held)
	assert.Zero(t, rec.TotalCents)
	assert.Equal(t, int64(1_100), rec.DeferredCents)
	assert.Equal(t, "creator_hold", rec.RateSource)

	deferral, err := f.repo.FindDeferral(ctx, f.db, "eve", week)
	require.NoError(t, err)
	require.NotNil(t, deferral)
	assert.Equal(t, domain.DeferralHold, deferral.Reason)
	assert.Equal(t, int64(1_100), deferral.AmountCents)
}

func TestGlobalThrottleLowersRate(t *testing.T) {
	f := newFixture(t, 1_000_000)
	f.addClip(t, "alice", week, 1_000, 51_000)
	ctx := context.Background()
	_, err := f.throttle.SetGlobal(ctx, analyst, riskdomain.SetGlobalRequest{Reason: "suspicious spike"})
	require.NoError(t, err)
	f.closeWeek(t, week)

	_, err = f.processor.RunWeeklyPayout(ctx, authorization.ActorSystem, week)
	require.NoError(t, err)

	rec := f.record(t, "alice", week)
	assert.Equal(t, int64(11), rec.EffectiveRPMCents)
	assert.Equal(t, "global_throttle", rec.RateSource)
	assert.Equal(t, int64(550), rec.TotalCents)
	assert.Positive(t, rec.ThrottleVersion)
}

func TestPartialFailureThenRetryFailedOnly(t *testing.T) {
	f := newFixture(t, 1_000_000)
	f.addClip(t, "alice", week, 1_000, 51_000)
	f.addClip(t, "carol", week, 0, 20_000)
	f.closeWeek(t, week)
	ctx := context.Background()

	f.flaky.failing["carol"] = true
	summary, err := f.processor.RunWeeklyPayout(ctx, authorization.ActorSystem, week)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusPartial, summary.Status)
	assert.Equal(t, []string{"alice"}, summary.Succeeded)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, "carol", summary.Failed[0].CreatorID)
	assert.False(t, summary.CyclePaid)

	cycle, err := f.budget.GetCycle(ctx, week)
	require.NoError(t, err)
	assert.Equal(t, budgetdomain.CycleStatusApproved, cycle.Status)
	assert.NotEmpty(t, cycle.LastError)

	missing, err := f.repo.LockRecord(ctx, f.db, "carol", week)
	require.NoError(t, err)
	assert.Nil(t, missing)
	aliceBefore := f.record(t, "alice", week)

	f.flaky.failing["carol"] = false
	retry, err := f.processor.RetryFailed(ctx, authorization.ActorSystem, week)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, retry.Status)
	assert.Equal(t, []string{"carol"}, retry.Succeeded)
	assert.True(t, retry.CyclePaid)

	assert.Equal(t, aliceBefore.RunID, f.record(t, "alice", week).RunID)
	assert.Equal(t, int64(440), f.record(t, "carol", week).TotalCents)
	assert.Equal(t, int64(1_540), f.clipperSpent(t, week))

	run, err := f.processor.LatestRun(ctx, week)
	require.NoError(t, err)
	assert.Equal(t, domain.RunKindRetry, run.Kind)
	assert.Equal(t, retry.RunID, run.ID)
}

func TestConcurrentRunIsRejected(t *testing.T) {
	f := newFixture(t, 1_000_000)
	f.addClip(t, "alice", week, 1_000, 51_000)
	f.closeWeek(t, week)
	ctx := context.Background()

	_, ok, err := f.locker.TryLock(ctx, "clipperpay:payout:"+week, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.processor.RunWeeklyPayout(ctx, authorization.ActorSystem, week)
	assert.ErrorIs(t, err, domain.ErrRunInProgress)
}

func TestPreviewWritesNothing(t *testing.T) {
	f := newFixture(t, 1_000_000)
	f.addClip(t, "alice", week, 1_000, 51_000)
	f.addClip(t, "alice", week, 0, 0)
	ctx := context.Background()

	preview, err := f.processor.Preview(ctx, finance, week)
	require.NoError(t, err)
	require.Len(t, preview.Lines, 1)
	assert.Equal(t, int64(1_100), preview.GrossCents)
	assert.Equal(t, 2, preview.Lines[0].ClipsCount)

	_, err = f.processor.Preview(ctx, authorization.ActorSystem, week)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	records, err := f.processor.ListRecords(ctx, week)
	require.NoError(t, err)
	assert.Empty(t, records)
	_, err = f.processor.LatestRun(ctx, week)
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

// countingLocker counts extensions of the held lock.
type countingLocker struct {
	lock.Locker
	extends atomic.Int64
}

func (l *countingLocker) Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	l.extends.Add(1)
	return l.Locker.Extend(ctx, key, token, ttl)
}

func TestRunLockIsExtendedWhileHeld(t *testing.T) {
	locker := &countingLocker{Locker: lock.NewLocal()}
	p := &Processor{locker: locker, lockTTL: 150 * time.Millisecond}
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "clipperpay:payout:"+week, p.lockTTL)
	require.NoError(t, err)
	require.True(t, ok)

	stop := p.keepLock(ctx, zap.NewNop(), "clipperpay:payout:"+week, token)
	time.Sleep(3 * p.lockTTL)

	_, ok, err = locker.TryLock(ctx, "clipperpay:payout:"+week, p.lockTTL)
	require.NoError(t, err)
	assert.False(t, ok)

	stop()
	assert.GreaterOrEqual(t, locker.extends.Load(), int64(3))
}

func TestRunLockKeepaliveStopsWhenLost(t *testing.T) {
	locker := &countingLocker{Locker: lock.NewLocal()}
	p := &Processor{locker: locker, lockTTL: 30 * time.Millisecond}

	stop := p.keepLock(context.Background(), zap.NewNop(), "clipperpay:payout:"+week, "never-held")
	require.Eventually(t, func() bool { return locker.extends.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(3 * p.lockTTL)
	stop()
	assert.Equal(t, int64(1), locker.extends.Load())
}
