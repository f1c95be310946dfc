package memory

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the memory subsystem's tunables. All budgets are counted
// in characters.
type Config struct {
	// RecallTopK is the maximum number of facts one recall query returns.
	RecallTopK int `env:"ENGRAM_RECALL_TOP_K"`

	// PromptBudget caps the assembled prompt payload, in characters.
	PromptBudget int `env:"ENGRAM_PROMPT_BUDGET"`

	// ShortTermTrimThreshold is how many trailing turns stay verbatim in
	// the short-term context. Older turns are summarized, not hard-cut.
	ShortTermTrimThreshold int `env:"ENGRAM_SHORT_TERM_TRIM_THRESHOLD"`

	// StoreTimeout bounds each store query and upsert. On timeout,
	// recall degrades to "no facts found" and the write is skipped
	// (queued when RetryFailedWrites is set); the planner is never
	// blocked on store latency.
	StoreTimeout time.Duration `env:"ENGRAM_STORE_TIMEOUT"`

	// WriteOnAmbiguous flips the tie-break: persist even when the trigger
	// signal is weak. Default false: spurious writes pollute the store
	// permanently, missed writes lose a single fact.
	WriteOnAmbiguous bool `env:"ENGRAM_WRITE_ON_AMBIGUOUS"`

	// RetryFailedWrites keeps facts whose upsert failed in a bounded
	// queue, retried at the next turn's persist phase.
	RetryFailedWrites bool `env:"ENGRAM_RETRY_FAILED_WRITES"`
}

// DefaultConfig is the baseline configuration for local use.
var DefaultConfig = &Config{
	RecallTopK:             10,
	PromptBudget:           4000,
	ShortTermTrimThreshold: 6,
	StoreTimeout:           2 * time.Second,
	WriteOnAmbiguous:       false,
	RetryFailedWrites:      true,
}

// ConfigFromEnv loads DefaultConfig overridden by ENGRAM_* environment
// variables. Durations use Go syntax ("1500ms", "2s").
func ConfigFromEnv() (*Config, error) {
	cfg := *DefaultConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	return &cfg, nil
}

// withDefaults fills zero fields from DefaultConfig so callers can pass a
// partially populated Config.
func (c *Config) withDefaults() *Config {
	if c == nil {
		cfg := *DefaultConfig
		return &cfg
	}
	cfg := *c
	if cfg.RecallTopK == 0 {
		cfg.RecallTopK = DefaultConfig.RecallTopK
	}
	if cfg.PromptBudget == 0 {
		cfg.PromptBudget = DefaultConfig.PromptBudget
	}
	if cfg.ShortTermTrimThreshold == 0 {
		cfg.ShortTermTrimThreshold = DefaultConfig.ShortTermTrimThreshold
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = DefaultConfig.StoreTimeout
	}
	return &cfg
}
