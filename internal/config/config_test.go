package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 3, cfg.MaxCitations)
	assert.Equal(t, 15*time.Second, cfg.TokenTimeout)
	assert.Equal(t, 2*time.Minute, cfg.StreamTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL)
	assert.False(t, cfg.UseScriptedLLM)
	assert.Zero(t, cfg.ReviewerAlertAfter)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("USE_SCRIPTED_LLM", "true")
	t.Setenv("MAX_CITATIONS", "5")
	t.Setenv("STREAM_TOKEN_TIMEOUT", "3s")
	t.Setenv("REVIEWER_ALERT_AFTER", "45m")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.UseScriptedLLM)
	assert.Equal(t, 5, cfg.MaxCitations)
	assert.Equal(t, 3*time.Second, cfg.TokenTimeout)
	assert.Equal(t, 45*time.Minute, cfg.ReviewerAlertAfter)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MAX_CITATIONS", "not-a-number")
	t.Setenv("STREAM_TOKEN_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 3, cfg.MaxCitations)
	assert.Equal(t, 15*time.Second, cfg.TokenTimeout)
}
