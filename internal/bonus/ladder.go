// Package bonus evaluates one-time lifetime view milestones.
package bonus

import (
	"sort"

	"github.com/smallbiznis/clipperpay/internal/config"
)

// EvaluateMilestones returns every rung at or below lifetimeNetViews that is
// not in alreadyPaid, lowest first. All crossed rungs are returned together.
func EvaluateMilestones(lifetimeNetViews int64, alreadyPaid []int64, ladder []config.Milestone) []config.Milestone {
	paid := make(map[int64]struct{}, len(alreadyPaid))
	for _, views := range alreadyPaid {
		paid[views] = struct{}{}
	}

	var out []config.Milestone
	for _, m := range ladder {
		if m.Views <= 0 || lifetimeNetViews < m.Views {
			continue
		}
		if _, ok := paid[m.Views]; ok {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Views < out[j].Views })
	return out
}

func Total(milestones []config.Milestone) int64 {
	var sum int64
	for _, m := range milestones {
		sum += m.AmountCents
	}
	return sum
}
