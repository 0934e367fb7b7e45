package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/openargument/reasonrank/internal/config"
	"github.com/openargument/reasonrank/internal/model"
)

// ArgumentWeight combines the three quality sub-scores into a single
// weight in [0,100] via geometric mean. A single near-zero factor
// collapses the whole weight: a highly important argument with no
// evidential support carries almost nothing.
//
// Inputs are validated at the mutation boundary, so out-of-range values
// never reach this point.
func ArgumentWeight(evidenceQuality, logicalValidity, importance float64) float64 {
	if evidenceQuality <= 0 || logicalValidity <= 0 || importance <= 0 {
		return 0
	}
	return math.Cbrt(evidenceQuality * logicalValidity * importance)
}

// EvidenceWeight is the leaf-level weight of one evidence item:
// credibility scaled by its tier and verification multipliers. Debunked
// evidence weighs exactly zero but stays visible in breakdowns.
func EvidenceWeight(e model.Evidence) (float64, error) {
	tier, ok := model.TierMultiplier(e.Tier)
	if !ok {
		return 0, fmt.Errorf("engine: unknown evidence tier %q", e.Tier)
	}
	verification, ok := model.VerificationMultiplier(e.Verification)
	if !ok {
		return 0, fmt.Errorf("engine: unknown verification status %q", e.Verification)
	}
	return e.Credibility * tier * verification, nil
}

// noveltyMultiplier is the time-decaying premium for recently submitted
// items: 1 + boost * 2^(-age/halfLife). Boost 0 (the default) disables
// it, returning exactly 1 so scores are reproducible from graph state
// alone.
func noveltyMultiplier(cfg config.Engine, submittedAt, now time.Time) float64 {
	if cfg.NoveltyBoost <= 0 || cfg.NoveltyHalfLife <= 0 || submittedAt.IsZero() {
		return 1
	}
	age := now.Sub(submittedAt)
	if age < 0 {
		age = 0
	}
	return 1 + cfg.NoveltyBoost*math.Exp2(-float64(age)/float64(cfg.NoveltyHalfLife))
}
