package memory_test

import (
	"testing"
	"time"

	"github.com/novamind/engram/memory"
)

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("ENGRAM_RECALL_TOP_K", "5")
	t.Setenv("ENGRAM_PROMPT_BUDGET", "2000")
	t.Setenv("ENGRAM_STORE_TIMEOUT", "500ms")
	t.Setenv("ENGRAM_WRITE_ON_AMBIGUOUS", "true")

	cfg, err := memory.ConfigFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RecallTopK != 5 {
		t.Errorf("RecallTopK = %d, want 5", cfg.RecallTopK)
	}
	if cfg.PromptBudget != 2000 {
		t.Errorf("PromptBudget = %d, want 2000", cfg.PromptBudget)
	}
	if cfg.StoreTimeout != 500*time.Millisecond {
		t.Errorf("StoreTimeout = %v, want 500ms", cfg.StoreTimeout)
	}
	if !cfg.WriteOnAmbiguous {
		t.Error("WriteOnAmbiguous should be overridden to true")
	}
	// Untouched fields keep their defaults.
	if cfg.ShortTermTrimThreshold != memory.DefaultConfig.ShortTermTrimThreshold {
		t.Errorf("ShortTermTrimThreshold = %d, want default", cfg.ShortTermTrimThreshold)
	}
}
