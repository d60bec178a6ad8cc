// Package config defines engine configuration and its loading.
//
// Configuration layers, lowest to highest precedence: built-in defaults,
// an optional YAML file named by TASTE_CONFIG, then environment variables
// with the TASTE_ prefix (TASTE_ADDR, TASTE_K_FACTOR, ...).
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Config carries every tunable of the engine.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Rating update tunables.
	KFactor         float64 `koanf:"k_factor"`
	SuperMultiplier float64 `koanf:"super_multiplier"`
	SigmaShrink     float64 `koanf:"sigma_shrink"`
	SigmaFloor      float64 `koanf:"sigma_floor"`

	// Composite score tunables.
	ConfidenceCap float64 `koanf:"confidence_cap"`
	MinEvidence   int     `koanf:"min_evidence"`
	FireBoostPer  float64 `koanf:"fire_boost_per"`
	FireBoostCap  float64 `koanf:"fire_boost_cap"`

	// Selection tunables.
	WeightUncertainty  float64       `koanf:"weight_uncertainty"`
	WeightEloProximity float64       `koanf:"weight_elo_proximity"`
	WeightColdStart    float64       `koanf:"weight_cold_start"`
	WeightDiversity    float64       `koanf:"weight_diversity"`
	PoolSize           int           `koanf:"pool_size"`
	ColdVoteThreshold  int           `koanf:"cold_vote_threshold"`
	EloBand            float64       `koanf:"elo_band"`
	EloBandWidenFactor float64       `koanf:"elo_band_widen_factor"`
	EloBandMaxWiden    int           `koanf:"elo_band_max_widen"`
	DuplicateRetries   int           `koanf:"duplicate_retries"`
	RecentCooldown     time.Duration `koanf:"recent_cooldown"`
	RecentCapacity     int           `koanf:"recent_capacity"`

	// DedupeSize bounds the event idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`

	// Recompute engine tunables.
	RecomputeInterval    time.Duration `koanf:"recompute_interval"`
	RecomputeBatchSize   int           `koanf:"recompute_batch_size"`
	RecomputeConcurrency int           `koanf:"recompute_concurrency"`

	// Retry policy for transient store failures.
	RetryAttempts        int           `koanf:"retry_attempts"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `koanf:"retry_max_interval"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// CatalogFile optionally seeds the store with an NFT catalog at startup.
	CatalogFile string `koanf:"catalog_file"`
}

// New returns a Config with the shipped defaults.
func New() *Config {
	return &Config{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",

		KFactor:         32,
		SuperMultiplier: 2.0,
		SigmaShrink:     0.97,
		SigmaFloor:      150,

		ConfidenceCap: 0.95,
		MinEvidence:   5,
		FireBoostPer:  0.5,
		FireBoostCap:  5.0,

		WeightUncertainty:  0.35,
		WeightEloProximity: 0.25,
		WeightColdStart:    0.30,
		WeightDiversity:    0.10,
		PoolSize:           64,
		ColdVoteThreshold:  3,
		EloBand:            100,
		EloBandWidenFactor: 2.0,
		EloBandMaxWiden:    4,
		DuplicateRetries:   3,
		RecentCooldown:     2 * time.Hour,
		RecentCapacity:     100_000,

		DedupeSize: 500_000,

		RecomputeInterval:    5 * time.Second,
		RecomputeBatchSize:   256,
		RecomputeConcurrency: runtime.NumCPU() * 2,

		RetryAttempts:        3,
		RetryInitialInterval: 50 * time.Millisecond,
		RetryMaxInterval:     500 * time.Millisecond,

		MaxLeaderboardLimit: 100,
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.KFactor <= 0:
		return fmt.Errorf("%w: k_factor must be positive", ErrInvalidConfig)
	case c.SuperMultiplier < 1:
		return fmt.Errorf("%w: super_multiplier must be at least 1", ErrInvalidConfig)
	case c.SigmaShrink <= 0 || c.SigmaShrink > 1:
		return fmt.Errorf("%w: sigma_shrink must be in (0, 1]", ErrInvalidConfig)
	case c.SigmaFloor < 0:
		return fmt.Errorf("%w: sigma_floor must not be negative", ErrInvalidConfig)
	case c.ConfidenceCap <= 0 || c.ConfidenceCap > 1:
		return fmt.Errorf("%w: confidence_cap must be in (0, 1]", ErrInvalidConfig)
	case c.PoolSize < 2:
		return fmt.Errorf("%w: pool_size must be at least 2", ErrInvalidConfig)
	case c.RecentCooldown < 0:
		return fmt.Errorf("%w: recent_cooldown must not be negative", ErrInvalidConfig)
	case c.RecomputeBatchSize <= 0:
		return fmt.Errorf("%w: recompute_batch_size must be positive", ErrInvalidConfig)
	case c.RecomputeConcurrency <= 0:
		return fmt.Errorf("%w: recompute_concurrency must be positive", ErrInvalidConfig)
	case c.MaxLeaderboardLimit <= 0:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	}
	return nil
}
