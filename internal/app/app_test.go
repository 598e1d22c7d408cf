package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-extractor/internal/config"
	"github.com/dvloznov/statement-extractor/internal/llm"
	"github.com/dvloznov/statement-extractor/internal/persist"
)

func testConfig() *config.Config {
	return &config.Config{
		LLMProvider:          config.ProviderOllama,
		LLMEndpoint:          "http://127.0.0.1:1",
		LLMModel:             "llama3.2:3b",
		LLMExtractTimeout:    time.Second,
		LLMCategorizeTimeout: time.Second,
		LLMMaxAttempts:       1,
		LLMChunkTokens:       1500,
		LLMConcurrency:       1,
		ReconcileTolerance:   0.000001,
		PendingTTL:           time.Minute,
		PendingShards:        2,
		MaxUploadBytes:       1 << 20,
		PersistSink:          config.SinkMemory,
	}
}

func TestNew_MemorySink(t *testing.T) {
	a, err := New(context.Background(), testConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Service)
	require.NotNil(t, a.Metrics)
	assert.IsType(t, &persist.MemorySink{}, a.Sink)
	assert.Contains(t, a.Service.Categories().Allowed("debit"), "Food")
}

func TestNew_CategoriesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.yaml")
	require.NoError(t, os.WriteFile(path, []byte("expense: [Groceries, Other]\nincome: [Salary]\nrules:\n  - keyword: DMART\n    category: Groceries\n"), 0o600))

	cfg := testConfig()
	cfg.CategoriesFile = path
	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.Service.Categories().Known("Groceries"))
	assert.False(t, a.Service.Categories().Known("Food"))
}

func TestNew_MissingCategoriesFile(t *testing.T) {
	cfg := testConfig()
	cfg.CategoriesFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewGenerator(t *testing.T) {
	gen, err := NewGenerator(context.Background(), testConfig())
	require.NoError(t, err)
	assert.IsType(t, &llm.OllamaBackend{}, gen)

	cfg := testConfig()
	cfg.LLMProvider = "openai"
	_, err = NewGenerator(context.Background(), cfg)
	assert.Error(t, err)
}
