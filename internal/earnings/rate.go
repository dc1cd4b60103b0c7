package earnings

import (
	"github.com/smallbiznis/clipperpay/internal/config"
	riskdomain "github.com/smallbiznis/clipperpay/internal/risk/domain"
)

type RateSource string

const (
	SourceDefault         RateSource = "default"
	SourceGlobalThrottle  RateSource = "global_throttle"
	SourceCreatorThrottle RateSource = "creator_throttle"
	SourceCreatorHold     RateSource = "creator_hold"
)

// Rate is the effective pay rate for one creator. When Hold is set the
// amount computed at RPMCents is deferred instead of paid.
type Rate struct {
	RPMCents        int64      `json:"rpm_cents"`
	Hold            bool       `json:"hold"`
	Source          RateSource `json:"source"`
	ThrottleVersion int64      `json:"throttle_version"`
}

// ResolveRate picks the lowest rate that applies under the snapshot.
func ResolveRate(snap riskdomain.Snapshot, rules config.PayoutRules) Rate {
	rate := Rate{RPMCents: rules.DefaultRPMCents, Source: SourceDefault, ThrottleVersion: snap.Version}

	if snap.GlobalActive {
		rpm := rules.ThrottledRPMCents
		if snap.RPMOverrideCents != nil {
			rpm = *snap.RPMOverrideCents
		}
		if rpm < rate.RPMCents {
			rate.RPMCents = rpm
			rate.Source = SourceGlobalThrottle
		}
	}

	if creator := snap.Creator; creator != nil {
		switch creator.Mode {
		case riskdomain.ThrottleHold:
			rate.Hold = true
			rate.Source = SourceCreatorHold
		case riskdomain.ThrottleReduced:
			rpm := rules.LowestRPMCents
			if creator.RPMCents != nil {
				rpm = *creator.RPMCents
			}
			if rpm < rate.RPMCents {
				rate.RPMCents = rpm
				rate.Source = SourceCreatorThrottle
			}
		}
	}
	return rate
}
