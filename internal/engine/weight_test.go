package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openargument/reasonrank/internal/config"
	"github.com/openargument/reasonrank/internal/model"
)

func TestArgumentWeightGeometricMean(t *testing.T) {
	assert.InDelta(t, 90.0, ArgumentWeight(90, 90, 90), 1e-9)
	assert.InDelta(t, 50.0, ArgumentWeight(50, 50, 50), 1e-9)

	// A single weak factor collapses the weight: high importance cannot
	// rescue thin evidence.
	w := ArgumentWeight(20, 95, 90)
	assert.InDelta(t, 55.5, w, 0.1)
	assert.Less(t, w, 90.0)

	assert.Zero(t, ArgumentWeight(0, 95, 90), "a zero factor zeroes the weight")
}

func TestEvidenceWeightTiersAndVerification(t *testing.T) {
	w, err := EvidenceWeight(model.Evidence{
		Tier: model.TierPeerReviewed, Credibility: 80, Verification: model.VerificationVerified,
	})
	require.NoError(t, err)
	assert.InDelta(t, 80.0, w, 1e-9)

	w, err = EvidenceWeight(model.Evidence{
		Tier: model.TierJournalism, Credibility: 80, Verification: model.VerificationUnverified,
	})
	require.NoError(t, err)
	assert.InDelta(t, 80*0.65*0.70, w, 1e-9)

	w, err = EvidenceWeight(model.Evidence{
		Tier: model.TierPeerReviewed, Credibility: 100, Verification: model.VerificationDebunked,
	})
	require.NoError(t, err)
	assert.Zero(t, w, "debunked evidence weighs nothing")

	_, err = EvidenceWeight(model.Evidence{Tier: "blog", Credibility: 50, Verification: model.VerificationVerified})
	require.Error(t, err)
}

func TestNoveltyMultiplier(t *testing.T) {
	now := time.Now()
	cfg := config.DefaultEngine()

	assert.Equal(t, 1.0, noveltyMultiplier(cfg, now, now), "boost 0 disables the premium")

	cfg.NoveltyBoost = 0.5
	cfg.NoveltyHalfLife = 72 * time.Hour
	assert.InDelta(t, 1.5, noveltyMultiplier(cfg, now, now), 1e-9)
	assert.InDelta(t, 1.25, noveltyMultiplier(cfg, now.Add(-72*time.Hour), now), 1e-9)
	assert.InDelta(t, 1.125, noveltyMultiplier(cfg, now.Add(-144*time.Hour), now), 1e-9)
	assert.Equal(t, 1.0, noveltyMultiplier(cfg, time.Time{}, now), "unknown submission time gets no premium")
}

func TestSigmoidScore(t *testing.T) {
	assert.Equal(t, 50.0, sigmoidScore(0, 40), "zero balance is exactly neutral")
	assert.InDelta(t, 90.46, sigmoidScore(90, 40), 0.01)
	assert.InDelta(t, 100-sigmoidScore(90, 40), sigmoidScore(-90, 40), 1e-9, "symmetric around neutral")
	assert.Less(t, sigmoidScore(1e9, 40), 100.0)
	assert.Greater(t, sigmoidScore(-1e9, 40), 0.0)
}

func TestDepthDiscount(t *testing.T) {
	assert.Equal(t, 1.0, depthDiscount(1, 0), "direct attachments are never discounted")
	assert.Equal(t, 2.0, depthDiscount(1, 1))
	assert.Equal(t, 3.0, depthDiscount(1, 2))
	assert.Equal(t, 1.0, depthDiscount(0, 4), "decay 0 disables attenuation")
}
