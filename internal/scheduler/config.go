package scheduler

import (
	"time"

	"github.com/smallbiznis/clipperpay/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	EnabledJobs []string

	// RecheckAfter is how stale a verified clip must be before it is fetched again.
	RecheckAfter time.Duration
	// ScoringInterval spaces out full risk scoring passes.
	ScoringInterval time.Duration
	JobTimeout      time.Duration
	PayoutTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     time.Minute,
		BatchSize:       100,
		RecheckAfter:    6 * time.Hour,
		ScoringInterval: time.Hour,
		JobTimeout:      30 * time.Second,
		PayoutTimeout:   30 * time.Minute,
	}
}

// ProvideConfig derives the scheduler config from the application config.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Scheduler.RunInterval,
		BatchSize:   cfg.Scheduler.BatchSize,
		EnabledJobs: cfg.Scheduler.EnabledJobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.RecheckAfter <= 0 {
		c.RecheckAfter = defaults.RecheckAfter
	}
	if c.ScoringInterval <= 0 {
		c.ScoringInterval = defaults.ScoringInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.PayoutTimeout <= 0 {
		c.PayoutTimeout = defaults.PayoutTimeout
	}
	return c
}
