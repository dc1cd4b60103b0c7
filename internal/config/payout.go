package config

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Milestone is one rung of the lifetime-views bonus ladder.
type Milestone struct {
	Views       int64 `mapstructure:"views"`
	AmountCents int64 `mapstructure:"amountCents"`
}

// SegmentDefault seeds a budget segment when none exists for the code.
type SegmentDefault struct {
	Code             string `mapstructure:"code"`
	Name             string `mapstructure:"name"`
	WeeklyLimitCents int64  `mapstructure:"weeklyLimitCents"`
}

// Thresholds are percentages of a weekly limit.
type Thresholds struct {
	WarnPercent     int64 `mapstructure:"warnPercent"`
	ThrottlePercent int64 `mapstructure:"throttlePercent"`
	FreezePercent   int64 `mapstructure:"freezePercent"`
}

// PayoutRules holds the business knobs of the payout engine.
type PayoutRules struct {
	DefaultRPMCents        int64            `mapstructure:"defaultRpmCents"`
	ThrottledRPMCents      int64            `mapstructure:"throttledRpmCents"`
	LowestRPMCents         int64            `mapstructure:"lowestRpmCents"`
	FloorCents             int64            `mapstructure:"floorCents"`
	CapCents               int64            `mapstructure:"capCents"`
	ActivationNetViews     int64            `mapstructure:"activationNetViews"`
	BonusLadder            []Milestone      `mapstructure:"bonusLadder"`
	Thresholds             Thresholds       `mapstructure:"thresholds"`
	ClipperSegment         string           `mapstructure:"clipperSegment"`
	GlobalWeeklyLimitCents int64            `mapstructure:"globalWeeklyLimitCents"`
	Segments               []SegmentDefault `mapstructure:"segments"`
	FlagScore              int              `mapstructure:"flagScore"`
	HighRiskScore          int              `mapstructure:"highRiskScore"`
	MaxVerifyAttempts      int              `mapstructure:"maxVerifyAttempts"`
	PayoutConcurrency      int              `mapstructure:"payoutConcurrency"`
}

func DefaultPayoutRules() PayoutRules {
	return PayoutRules{
		DefaultRPMCents:    22,
		ThrottledRPMCents:  11,
		LowestRPMCents:     5,
		FloorCents:         222,
		CapCents:           2200,
		ActivationNetViews: 1000,
		BonusLadder: []Milestone{
			{Views: 100_000, AmountCents: 11_100},
			{Views: 500_000, AmountCents: 44_400},
			{Views: 1_000_000, AmountCents: 111_100},
		},
		Thresholds: Thresholds{
			WarnPercent:     80,
			ThrottlePercent: 95,
			FreezePercent:   100,
		},
		ClipperSegment:         "clipper-payouts",
		GlobalWeeklyLimitCents: 5_000_000,
		Segments: []SegmentDefault{
			{Code: "clipper-payouts", Name: "Clipper payouts", WeeklyLimitCents: 4_000_000},
			{Code: "affiliate-commissions", Name: "Affiliate commissions", WeeklyLimitCents: 1_000_000},
		},
		FlagScore:         30,
		HighRiskScore:     60,
		MaxVerifyAttempts: 10,
		PayoutConcurrency: 8,
	}
}

type PayoutRulesHolder struct {
	current atomic.Value // holds PayoutRules
}

// NewStaticPayoutRules returns a holder that never reloads.
func NewStaticPayoutRules(rules PayoutRules) *PayoutRulesHolder {
	holder := &PayoutRulesHolder{}
	holder.current.Store(normalizeRules(rules))
	return holder
}

func NewPayoutRulesHolder() (*PayoutRulesHolder, error) {
	v := viper.New()

	v.SetConfigName("payout")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/clipperpay/config")
	v.AddConfigPath("/etc/clipperpay")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CLIPPERPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &PayoutRulesHolder{}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(normalizeRules(DefaultPayoutRules()))
		return holder, nil
	}

	cfg, err := decodeRules(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeRules(v)
		if err != nil {
			log.Printf("[payout-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[payout-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PayoutRulesHolder) Get() PayoutRules {
	if h == nil {
		return normalizeRules(DefaultPayoutRules())
	}
	rules, ok := h.current.Load().(PayoutRules)
	if !ok {
		return normalizeRules(DefaultPayoutRules())
	}
	return rules
}

func decodeRules(v *viper.Viper) (PayoutRules, error) {
	cfg := DefaultPayoutRules()
	if err := v.UnmarshalKey("payout", &cfg); err != nil {
		return PayoutRules{}, fmt.Errorf("decode payout rules: %w", err)
	}
	cfg = normalizeRules(cfg)
	if err := ValidatePayoutRules(cfg); err != nil {
		return PayoutRules{}, err
	}
	return cfg, nil
}

func normalizeRules(cfg PayoutRules) PayoutRules {
	ladder := append([]Milestone(nil), cfg.BonusLadder...)
	sort.Slice(ladder, func(i, j int) bool { return ladder[i].Views < ladder[j].Views })
	cfg.BonusLadder = ladder
	cfg.ClipperSegment = strings.TrimSpace(cfg.ClipperSegment)
	if cfg.PayoutConcurrency <= 0 {
		cfg.PayoutConcurrency = 1
	}
	return cfg
}

func ValidatePayoutRules(cfg PayoutRules) error {
	if cfg.DefaultRPMCents <= 0 {
		return errors.New("payout.defaultRpmCents must be positive")
	}
	if cfg.LowestRPMCents < 0 || cfg.LowestRPMCents > cfg.DefaultRPMCents {
		return errors.New("payout.lowestRpmCents must be between 0 and defaultRpmCents")
	}
	if cfg.FloorCents < 0 || cfg.CapCents < cfg.FloorCents {
		return errors.New("payout.capCents must not be below floorCents")
	}
	t := cfg.Thresholds
	if !(0 < t.WarnPercent && t.WarnPercent <= t.ThrottlePercent && t.ThrottlePercent <= t.FreezePercent) {
		return errors.New("payout.thresholds must be ascending")
	}
	if cfg.ClipperSegment == "" {
		return errors.New("payout.clipperSegment cannot be empty")
	}
	for _, m := range cfg.BonusLadder {
		if m.Views <= 0 || m.AmountCents <= 0 {
			return errors.New("payout.bonusLadder entries must be positive")
		}
	}
	if cfg.FlagScore > cfg.HighRiskScore {
		return errors.New("payout.flagScore must not exceed highRiskScore")
	}
	return nil
}
