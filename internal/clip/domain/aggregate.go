package domain

import (
	"time"

	"github.com/smallbiznis/clipperpay/internal/clock"
)

const MaxPostingStreakDays = 30

// CreatorAggregate is derived from clip rows on every read.
type CreatorAggregate struct {
	CreatorID          string   `json:"creator_id"`
	TotalClips         int      `json:"total_clips"`
	TotalViews         int64    `json:"total_views"`
	NetViews           int64    `json:"net_views"`
	TotalEarningsCents int64    `json:"total_earnings_cents"`
	ThisWeekClips      int      `json:"this_week_clips"`
	ThisWeekViews      int64    `json:"this_week_views"`
	LastWeekClips      int      `json:"last_week_clips"`
	LastWeekViews      int64    `json:"last_week_views"`
	PostingStreakDays  int      `json:"posting_streak_days"`
	PendingClips       int      `json:"pending_clips"`
	VerifiedClips      int      `json:"verified_clips"`
	RejectedClips      int      `json:"rejected_clips"`
	ActivatedClips     int      `json:"activated_clips"`
	AverageCTR         *float64 `json:"average_ctr,omitempty"`
}

// Aggregate sums clips for one creator. Week figures use net views.
func Aggregate(creatorID string, clips []Clip, now time.Time) CreatorAggregate {
	agg := CreatorAggregate{CreatorID: creatorID}
	thisWeek := clock.WeekKey(now)
	lastWeek := clock.WeekKey(now.AddDate(0, 0, -7))

	var ctrSum float64
	var ctrCount int
	days := make(map[string]struct{}, len(clips))
	for _, c := range clips {
		agg.TotalClips++
		agg.TotalViews += c.ViewCount
		net := c.NetViews()
		agg.NetViews += net
		agg.TotalEarningsCents += c.EarningsCents

		switch c.Status {
		case StatusPending:
			agg.PendingClips++
		case StatusVerified:
			agg.VerifiedClips++
		case StatusRejected:
			agg.RejectedClips++
		}
		if c.IsActivated {
			agg.ActivatedClips++
		}
		switch c.WeekKey {
		case thisWeek:
			agg.ThisWeekClips++
			agg.ThisWeekViews += net
		case lastWeek:
			agg.LastWeekClips++
			agg.LastWeekViews += net
		}
		if c.ClickThroughRate != nil && *c.ClickThroughRate > 0 {
			ctrSum += *c.ClickThroughRate
			ctrCount++
		}
		days[c.SubmittedAt.UTC().Format(time.DateOnly)] = struct{}{}
	}
	if ctrCount > 0 {
		avg := ctrSum / float64(ctrCount)
		agg.AverageCTR = &avg
	}
	agg.PostingStreakDays = postingStreak(days, now)
	return agg
}

// postingStreak counts consecutive days with a submission ending today.
// A streak that ended yesterday still counts so it is not lost before today's post.
func postingStreak(days map[string]struct{}, now time.Time) int {
	day := now.UTC()
	if _, ok := days[day.Format(time.DateOnly)]; !ok {
		day = day.AddDate(0, 0, -1)
	}
	streak := 0
	for streak < MaxPostingStreakDays {
		if _, ok := days[day.Format(time.DateOnly)]; !ok {
			break
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}
