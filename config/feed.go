package config

import (
	"fmt"
	"time"
)

// DefaultPageSize is the number of items on one feed page. Diversity caps are bounded by it.
const DefaultPageSize = 20

// FeedConfig controls candidate selection and the freshness/social sub-scores.
type FeedConfig struct {
	PageSize          int           `mapstructure:"page_size"`
	CandidateLimit    int           `mapstructure:"candidate_limit"`
	FreshnessHalfLife time.Duration `mapstructure:"freshness_half_life"`
	MutualSaturation  int           `mapstructure:"mutual_saturation"`
	ConfigCacheTTL    time.Duration `mapstructure:"config_cache_ttl"`
}

// Normalize clamps configuration values to usable ranges.
func (c FeedConfig) Normalize() FeedConfig {
	cfg := c
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 500
	}
	if cfg.CandidateLimit > 5000 {
		cfg.CandidateLimit = 5000
	}
	if cfg.FreshnessHalfLife <= 0 {
		cfg.FreshnessHalfLife = 48 * time.Hour
	}
	if cfg.MutualSaturation <= 0 {
		cfg.MutualSaturation = 5
	}
	if cfg.ConfigCacheTTL < 0 {
		cfg.ConfigCacheTTL = 0
	}
	return cfg
}

// Validate ensures configuration is internally consistent.
func (c FeedConfig) Validate() error {
	if c.PageSize != DefaultPageSize {
		return fmt.Errorf("feed.page_size must be %d (diversity caps are defined per %d-item page)", DefaultPageSize, DefaultPageSize)
	}
	if c.CandidateLimit < c.PageSize {
		return fmt.Errorf("feed.candidate_limit must be >= page_size")
	}
	return nil
}

// PayoutConfig bounds creator payout requests.
type PayoutConfig struct {
	MinCoinAmount int64 `mapstructure:"min_coin_amount"`
	MaxCoinAmount int64 `mapstructure:"max_coin_amount"` // 0 = unbounded
}

// Normalize clamps negative limits.
func (c PayoutConfig) Normalize() PayoutConfig {
	if c.MinCoinAmount < 1 {
		c.MinCoinAmount = 1
	}
	if c.MaxCoinAmount < 0 {
		c.MaxCoinAmount = 0
	}
	return c
}

// Validate ensures the payout bounds are ordered.
func (c PayoutConfig) Validate() error {
	if c.MaxCoinAmount > 0 && c.MaxCoinAmount < c.MinCoinAmount {
		return fmt.Errorf("payouts.max_coin_amount must be >= min_coin_amount")
	}
	return nil
}
