// Package earnings computes per-clip pay in integer cents.
package earnings

import (
	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	"github.com/smallbiznis/clipperpay/internal/config"
)

// Calculator applies the per-clip floor and cap.
type Calculator struct {
	FloorCents int64
	CapCents   int64
}

func NewCalculator(rules config.PayoutRules) Calculator {
	return Calculator{FloorCents: rules.FloorCents, CapCents: rules.CapCents}
}

// NetViews is the view count above the baseline, never negative.
func NetViews(viewCount, baselineViewCount int64) int64 {
	if net := viewCount - baselineViewCount; net > 0 {
		return net
	}
	return 0
}

// ComputeClipEarnings returns earnings for one clip at rpmCents per 1,000 views.
// The product is rounded half-up to a cent before the floor and cap apply,
// so any clip with net views earns at least the floor.
func (c Calculator) ComputeClipEarnings(viewCount, baselineViewCount, rpmCents int64) int64 {
	net := NetViews(viewCount, baselineViewCount)
	if net == 0 {
		return 0
	}
	if rpmCents < 0 {
		rpmCents = 0
	}
	raw := (net*rpmCents + 500) / 1000
	switch {
	case raw < c.FloorCents:
		return c.FloorCents
	case raw > c.CapCents:
		return c.CapCents
	default:
		return raw
	}
}

// Clip computes earnings for a stored clip. Unverified clips earn nothing.
func (c Calculator) Clip(clip clipdomain.Clip, rpmCents int64) int64 {
	if clip.Status != clipdomain.StatusVerified {
		return 0
	}
	return c.ComputeClipEarnings(clip.ViewCount, clip.BaselineViewCount, rpmCents)
}
