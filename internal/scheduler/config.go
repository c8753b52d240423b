package scheduler

import (
	"time"

	"github.com/smallbiznis/frostclub/internal/config"
)

// Config controls cron specs, windows and batch sizes.
type Config struct {
	Enabled        bool
	AbandonAfter   time.Duration
	ReconcileAfter time.Duration
	SweepSpec      string
	ReconcileSpec  string
	BatchSize      int
	JobTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		AbandonAfter:   24 * time.Hour,
		ReconcileAfter: 10 * time.Minute,
		SweepSpec:      "@every 15m",
		ReconcileSpec:  "@every 5m",
		BatchSize:      50,
		JobTimeout:     2 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	sc := cfg.Scheduler
	return Config{
		Enabled:        sc.Enabled,
		AbandonAfter:   sc.AbandonAfter,
		ReconcileAfter: sc.ReconcileAfter,
		SweepSpec:      sc.SweepSpec,
		ReconcileSpec:  sc.ReconcileSpec,
		BatchSize:      sc.BatchSize,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.AbandonAfter <= 0 {
		c.AbandonAfter = defaults.AbandonAfter
	}
	if c.ReconcileAfter <= 0 {
		c.ReconcileAfter = defaults.ReconcileAfter
	}
	if c.SweepSpec == "" {
		c.SweepSpec = defaults.SweepSpec
	}
	if c.ReconcileSpec == "" {
		c.ReconcileSpec = defaults.ReconcileSpec
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
