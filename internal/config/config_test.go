package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "reasonrank.db", cfg.SQLitePath)
	assert.Equal(t, 40.0, cfg.Engine.SigmoidScale)
	assert.Equal(t, 5, cfg.Engine.MaxDepth)
	assert.Equal(t, 0.85, cfg.Engine.SimilarityThreshold)
	assert.Equal(t, 0.85, cfg.Engine.Damping)
	assert.Equal(t, 1e-4, cfg.Engine.Epsilon)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REASONRANK_PORT", "9999")
	t.Setenv("REASONRANK_SIGMOID_SCALE", "100")
	t.Setenv("REASONRANK_MAX_DEPTH", "3")
	t.Setenv("REASONRANK_PROPAGATE_INTERVAL", "15m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, 100.0, cfg.Engine.SigmoidScale)
	assert.Equal(t, 3, cfg.Engine.MaxDepth)
	assert.Equal(t, "15m0s", cfg.PropagateInterval.String())
}

func TestEngineValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Engine)
	}{
		{"zero scale", func(e *Engine) { e.SigmoidScale = 0 }},
		{"zero depth", func(e *Engine) { e.MaxDepth = 0 }},
		{"negative decay", func(e *Engine) { e.DepthDecay = -0.1 }},
		{"threshold over one", func(e *Engine) { e.SimilarityThreshold = 1.1 }},
		{"damping over one", func(e *Engine) { e.Damping = 1.5 }},
		{"zero iterations", func(e *Engine) { e.MaxIterations = 0 }},
		{"zero epsilon", func(e *Engine) { e.Epsilon = 0 }},
		{"baseline out of range", func(e *Engine) { e.IndirectLinkageBaseline = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := DefaultEngine()
			tt.mutate(&e)
			require.Error(t, e.Validate())
		})
	}

	require.NoError(t, DefaultEngine().Validate())
}

func TestValidateRequiresStore(t *testing.T) {
	t.Setenv("REASONRANK_SQLITE_PATH", "x")
	cfg, err := Load()
	require.NoError(t, err)

	cfg.DatabaseURL = ""
	cfg.SQLitePath = ""
	require.Error(t, cfg.Validate())
}
