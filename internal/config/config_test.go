package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ProviderOllama, cfg.LLMProvider)
	assert.Equal(t, "llama3.2:3b", cfg.Model())
	assert.Equal(t, 60*time.Second, cfg.LLMExtractTimeout)
	assert.Equal(t, 15*time.Second, cfg.LLMCategorizeTimeout)
	assert.Equal(t, 3, cfg.LLMMaxAttempts)
	assert.True(t, cfg.EnableLLMParsing)
	assert.False(t, cfg.EnableLLMCategorization)
	assert.Equal(t, 0.000001, cfg.ReconcileTolerance)
	assert.Equal(t, 30*time.Minute, cfg.PendingTTL)
	assert.Equal(t, int64(32*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, SinkMemory, cfg.PersistSink)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("GEMINI_MODEL", "gemini-2.5-pro")
	t.Setenv("LLM_EXTRACT_TIMEOUT", "90s")
	t.Setenv("ENABLE_LLM_PARSING", "false")
	t.Setenv("RECONCILE_TOLERANCE", "0.01")
	t.Setenv("PENDING_SHARDS", "4")

	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, ProviderGemini, cfg.LLMProvider)
	assert.Equal(t, "gemini-2.5-pro", cfg.Model())
	assert.Equal(t, 90*time.Second, cfg.LLMExtractTimeout)
	assert.False(t, cfg.EnableLLMParsing)
	assert.Equal(t, 0.01, cfg.ReconcileTolerance)
	assert.Equal(t, 4, cfg.PendingShards)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("LLM_MAX_ATTEMPTS", "three")
	t.Setenv("PENDING_TTL", "soon")

	var buf bytes.Buffer
	cfg, err := Load(zerolog.New(&buf))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.LLMMaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.PendingTTL)
	assert.Contains(t, buf.String(), "LLM_MAX_ATTEMPTS")
	assert.Contains(t, buf.String(), "PENDING_TTL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero timeout", mutate: func(c *Config) { c.LLMExtractTimeout = 0 }},
		{name: "no attempts", mutate: func(c *Config) { c.LLMMaxAttempts = 0 }},
		{name: "negative tolerance", mutate: func(c *Config) { c.ReconcileTolerance = -1 }},
		{name: "unknown provider", mutate: func(c *Config) { c.LLMProvider = "openai" }},
		{name: "bigquery without project", mutate: func(c *Config) { c.PersistSink = SinkBigQuery }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(zerolog.Nop())
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	t.Setenv("LLM_MAX_ATTEMPTS", "0")
	_, err := Load(zerolog.Nop())
	assert.Error(t, err)
}
