package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/clipperpay/internal/authorization"
	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	"github.com/smallbiznis/clipperpay/internal/clock"
	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/smallbiznis/clipperpay/internal/risk/domain"
	"github.com/smallbiznis/clipperpay/internal/risk/repository"
	"github.com/smallbiznis/clipperpay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubClips struct {
	clipdomain.Service
	byCreator map[string][]clipdomain.Clip
}

func (s *stubClips) ListAllByCreator(_ context.Context, creatorID string) ([]clipdomain.Clip, error) {
	return s.byCreator[creatorID], nil
}

func (s *stubClips) ListCreatorIDs(context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.byCreator))
	for id := range s.byCreator {
		ids = append(ids, id)
	}
	return ids, nil
}

type fixture struct {
	db       *gorm.DB
	throttle domain.ThrottleService
	scoring  domain.ScoringService
	clips    *stubClips
}

const riskOperator = "operator:rhea"

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := testutil.OpenDB(t, &domain.GlobalThrottle{}, &domain.CreatorThrottle{}, &domain.RiskScore{})
	clk := clock.NewFakeClock(time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC))
	authz := testutil.Authz(t, map[string]string{"rhea": "risk", "vic": "viewer"})
	repo := repository.Provide()
	clips := &stubClips{byCreator: map[string][]clipdomain.Clip{}}
	return fixture{
		db:       conn,
		clips:    clips,
		throttle: NewThrottleService(ThrottleParams{DB: conn, Log: zap.NewNop(), Repo: repo, Clock: clk, Authz: authz}),
		scoring: NewScoringService(ScoringParams{
			DB: conn, Log: zap.NewNop(), Repo: repo, Clips: clips, Clock: clk,
			Rules: config.NewStaticPayoutRules(config.DefaultPayoutRules()), Authz: authz,
		}),
	}
}

func TestSnapshotDefaultsToInactive(t *testing.T) {
	f := newFixture(t)
	snap, err := f.throttle.Snapshot(context.Background(), "creator-1")
	require.NoError(t, err)
	assert.False(t, snap.GlobalActive)
	assert.Nil(t, snap.Creator)
	assert.Zero(t, snap.Version)
}

func TestGlobalThrottleIsVersionedAndManualClearOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	override := int64(11)

	state, err := f.throttle.SetGlobal(ctx, riskOperator, domain.SetGlobalRequest{RPMOverrideCents: &override, Reason: "spike"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.Version)

	snap, err := f.throttle.Snapshot(ctx, "")
	require.NoError(t, err)
	assert.True(t, snap.GlobalActive)
	require.NotNil(t, snap.RPMOverrideCents)
	assert.Equal(t, int64(11), *snap.RPMOverrideCents)

	cleared, err := f.throttle.ClearGlobal(ctx, riskOperator)
	require.NoError(t, err)
	assert.False(t, cleared.IsActive)
	assert.Nil(t, cleared.RPMOverrideCents)
	assert.Equal(t, int64(2), cleared.Version)
}

func TestSetGlobalRequiresRiskRole(t *testing.T) {
	f := newFixture(t)
	_, err := f.throttle.SetGlobal(context.Background(), "operator:vic", domain.SetGlobalRequest{Reason: "x"})
	assert.ErrorIs(t, err, authorization.ErrForbidden)
	_, err = f.throttle.SetGlobal(context.Background(), riskOperator, domain.SetGlobalRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidReason)
}

func TestActivateGlobalTxKeepsExistingThrottle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var first, second bool
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		first, err = f.throttle.ActivateGlobalTx(ctx, tx, authorization.ActorSystem, "budget:clipper-payouts")
		return err
	}))
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		second, err = f.throttle.ActivateGlobalTx(ctx, tx, authorization.ActorSystem, "budget:other")
		return err
	}))
	assert.True(t, first)
	assert.False(t, second)

	state, err := f.throttle.Global(ctx)
	require.NoError(t, err)
	assert.Equal(t, "budget:clipper-payouts", state.Reason)
}

func TestCreatorThrottleLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.throttle.SetCreator(ctx, riskOperator, domain.SetCreatorRequest{CreatorID: "c1", Mode: "pause"})
	assert.ErrorIs(t, err, domain.ErrInvalidMode)

	_, err = f.throttle.SetCreator(ctx, riskOperator, domain.SetCreatorRequest{CreatorID: "c1", Mode: domain.ThrottleHold, Reason: "review"})
	require.NoError(t, err)
	snap, err := f.throttle.Snapshot(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, snap.Creator)
	assert.Equal(t, domain.ThrottleHold, snap.Creator.Mode)
	assert.Equal(t, int64(1), snap.Version)

	require.NoError(t, f.throttle.ClearCreator(ctx, riskOperator, "c1"))
	assert.ErrorIs(t, f.throttle.ClearCreator(ctx, riskOperator, "c1"), domain.ErrThrottleMissing)

	snap, err = f.throttle.Snapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, snap.Creator)
	assert.Equal(t, int64(2), snap.Version)
}

func TestScoreAllAutoThrottlesHighRiskOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)
	ctr := 0.2
	var risky []clipdomain.Clip
	for i := 0; i < 5; i++ {
		risky = append(risky, clipdomain.Clip{ViewCount: 50000, Status: clipdomain.StatusPending, ClickThroughRate: &ctr, SubmittedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	f.clips.byCreator["risky"] = risky
	f.clips.byCreator["flagged"] = []clipdomain.Clip{{ViewCount: 40000, EarningsCents: 2200, Status: clipdomain.StatusVerified, SubmittedAt: base, ClickThroughRate: &ctr}}
	f.clips.byCreator["clean"] = []clipdomain.Clip{{ViewCount: 2000, EarningsCents: 222, Status: clipdomain.StatusVerified, SubmittedAt: base}}

	res, err := f.scoring.ScoreAll(ctx, authorization.ActorSystem)
	require.NoError(t, err)
	assert.Equal(t, domain.ScoreRunResult{Scored: 3, Flagged: 1, HighRisk: 1, Throttled: 1}, res)

	snap, err := f.throttle.Snapshot(ctx, "risky")
	require.NoError(t, err)
	require.NotNil(t, snap.Creator)
	assert.Equal(t, domain.ThrottleReduced, snap.Creator.Mode)
	assert.Equal(t, domain.SourceAuto, snap.Creator.Source)

	again, err := f.scoring.ScoreAll(ctx, authorization.ActorSystem)
	require.NoError(t, err)
	assert.Zero(t, again.Throttled)

	scores, err := f.scoring.ListScores(ctx, 30)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, "risky", scores[0].CreatorID)
	assert.Equal(t, 100, scores[0].Score)
}

func TestScoreCreatorNeverThrottlesFlagged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clips.byCreator["c"] = []clipdomain.Clip{{ViewCount: 6000, Status: clipdomain.StatusVerified}}

	score, err := f.scoring.ScoreCreator(ctx, riskOperator, "c")
	require.NoError(t, err)
	assert.Equal(t, 20, score.Score)
	assert.Equal(t, domain.BandClean, score.Band)

	snap, err := f.throttle.Snapshot(ctx, "c")
	require.NoError(t, err)
	assert.Nil(t, snap.Creator)
}
