package earnings

import (
	"testing"

	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	"github.com/smallbiznis/clipperpay/internal/config"
	riskdomain "github.com/smallbiznis/clipperpay/internal/risk/domain"
	"github.com/stretchr/testify/assert"
)

var calc = NewCalculator(config.DefaultPayoutRules())

func TestZeroNetViewsEarnNothing(t *testing.T) {
	for _, rpm := range []int64{0, 5, 22, 1000} {
		assert.Zero(t, calc.ComputeClipEarnings(1000, 1000, rpm))
		assert.Zero(t, calc.ComputeClipEarnings(500, 1000, rpm))
		assert.Zero(t, calc.ComputeClipEarnings(0, 0, rpm))
	}
}

func TestFloorAndCapHoldForAnyRate(t *testing.T) {
	for _, rpm := range []int64{0, 1, 5, 11, 22, 500, 100000} {
		for _, net := range []int64{1, 999, 10_100, 50_000, 100_000, 10_000_000} {
			got := calc.ComputeClipEarnings(net, 0, rpm)
			assert.GreaterOrEqual(t, got, int64(222), "net=%d rpm=%d", net, rpm)
			assert.LessOrEqual(t, got, int64(2200), "net=%d rpm=%d", net, rpm)
		}
	}
}

func TestEarningsMonotonicInNetViews(t *testing.T) {
	for _, rpm := range []int64{5, 11, 22} {
		prev := int64(0)
		for net := int64(1); net <= 200_000; net += 997 {
			got := calc.ComputeClipEarnings(net, 0, rpm)
			assert.GreaterOrEqual(t, got, prev, "net=%d rpm=%d", net, rpm)
			prev = got
		}
	}
}

func TestBaselineScenario(t *testing.T) {
	assert.Equal(t, int64(1100), calc.ComputeClipEarnings(51000, 1000, 22))
}

func TestRoundHalfUp(t *testing.T) {
	// 15,500 views at 22 = 341.0; 15,523 views at 22 = 341.506
	assert.Equal(t, int64(341), calc.ComputeClipEarnings(15_500, 0, 22))
	assert.Equal(t, int64(342), calc.ComputeClipEarnings(15_523, 0, 22))
	// 10,250 views at 22 = 225.5
	assert.Equal(t, int64(226), calc.ComputeClipEarnings(10_250, 0, 22))
}

func TestClipIgnoresUnverified(t *testing.T) {
	clip := clipdomain.Clip{Status: clipdomain.StatusPending, ViewCount: 51000, BaselineViewCount: 1000, BaselineCaptured: true}
	assert.Zero(t, calc.Clip(clip, 22))
	clip.Status = clipdomain.StatusVerified
	assert.Equal(t, int64(1100), calc.Clip(clip, 22))
}

func TestResolveRate(t *testing.T) {
	rules := config.DefaultPayoutRules()
	override := int64(15)
	creatorRPM := int64(8)
	higher := int64(40)

	cases := []struct {
		name string
		snap riskdomain.Snapshot
		want Rate
	}{
		{"default", riskdomain.Snapshot{}, Rate{RPMCents: 22, Source: SourceDefault}},
		{"global", riskdomain.Snapshot{GlobalActive: true}, Rate{RPMCents: 11, Source: SourceGlobalThrottle}},
		{"global override", riskdomain.Snapshot{GlobalActive: true, RPMOverrideCents: &override}, Rate{RPMCents: 15, Source: SourceGlobalThrottle}},
		{"override above default", riskdomain.Snapshot{GlobalActive: true, RPMOverrideCents: &higher}, Rate{RPMCents: 22, Source: SourceDefault}},
		{"creator lowest", riskdomain.Snapshot{Creator: &riskdomain.CreatorThrottle{Mode: riskdomain.ThrottleReduced}}, Rate{RPMCents: 5, Source: SourceCreatorThrottle}},
		{"creator custom", riskdomain.Snapshot{GlobalActive: true, Creator: &riskdomain.CreatorThrottle{Mode: riskdomain.ThrottleReduced, RPMCents: &creatorRPM}}, Rate{RPMCents: 8, Source: SourceCreatorThrottle}},
		{"hold", riskdomain.Snapshot{Version: 3, GlobalActive: true, Creator: &riskdomain.CreatorThrottle{Mode: riskdomain.ThrottleHold}}, Rate{RPMCents: 11, Hold: true, Source: SourceCreatorHold, ThrottleVersion: 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolveRate(tc.snap, rules))
		})
	}
}
