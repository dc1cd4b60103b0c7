package domain

import (
	"time"

	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
)

const (
	MaxScore = 100

	WeightZeroConversion = 20
	WeightAllPending     = 15
	WeightViewAverage    = 25
	WeightHighCTR        = 20
	WeightBurstPosting   = 20

	zeroConversionViews = 5000
	allPendingMinClips  = 3
	viewAverageLimit    = 10000
	ctrLimit            = 0.05
	burstClips          = 5
	burstWindow         = time.Hour
)

const (
	SignalZeroConversion = "zero_conversion"
	SignalAllPending     = "all_pending"
	SignalViewAverage    = "view_average"
	SignalHighCTR        = "high_ctr"
	SignalBurstPosting   = "burst_posting"
)

type Signal struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

type Assessment struct {
	Score              int
	Signals            []Signal
	TotalClips         int
	TotalViews         int64
	TotalEarningsCents int64
}

// ScoreCreator scores one creator from their own clip history only.
func ScoreCreator(clips []clipdomain.Clip) Assessment {
	var a Assessment
	pending := 0
	var ctrSum float64
	ctrCount := 0
	submitted := make([]time.Time, 0, len(clips))

	for _, c := range clips {
		a.TotalClips++
		a.TotalViews += c.ViewCount
		a.TotalEarningsCents += c.EarningsCents
		if c.Status == clipdomain.StatusPending {
			pending++
		}
		if c.ClickThroughRate != nil && *c.ClickThroughRate > 0 {
			ctrSum += *c.ClickThroughRate
			ctrCount++
		}
		submitted = append(submitted, c.SubmittedAt)
	}

	add := func(name string, weight int) {
		a.Signals = append(a.Signals, Signal{Name: name, Weight: weight})
		a.Score += weight
	}
	if a.TotalViews > zeroConversionViews && a.TotalEarningsCents == 0 {
		add(SignalZeroConversion, WeightZeroConversion)
	}
	if a.TotalClips > allPendingMinClips && pending == a.TotalClips {
		add(SignalAllPending, WeightAllPending)
	}
	if a.TotalClips > 0 && a.TotalViews > viewAverageLimit*int64(a.TotalClips) {
		add(SignalViewAverage, WeightViewAverage)
	}
	if ctrCount > 0 && ctrSum/float64(ctrCount) > ctrLimit {
		add(SignalHighCTR, WeightHighCTR)
	}
	if hasBurst(submitted) {
		add(SignalBurstPosting, WeightBurstPosting)
	}
	if a.Score > MaxScore {
		a.Score = MaxScore
	}
	return a
}

// hasBurst reports whether at least burstClips submissions exist and the
// earliest and latest of them lie less than burstWindow apart.
func hasBurst(times []time.Time) bool {
	if len(times) < burstClips {
		return false
	}
	earliest, latest := times[0], times[0]
	for _, t := range times[1:] {
		if t.Before(earliest) {
			earliest = t
		}
		if t.After(latest) {
			latest = t
		}
	}
	return latest.Sub(earliest) < burstWindow
}

// BandFor maps a score onto its action band. flagAt is inclusive, highAbove exclusive.
func BandFor(score, flagAt, highAbove int) Band {
	switch {
	case score > highAbove:
		return BandHigh
	case score >= flagAt:
		return BandFlagged
	default:
		return BandClean
	}
}
