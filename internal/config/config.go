// Package config loads the service configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"

	SinkMemory   = "memory"
	SinkBigQuery = "bigquery"
)

// Config is the full service configuration.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	LLMProvider          string
	LLMEndpoint          string
	LLMModel             string
	GeminiModel          string
	LLMExtractTimeout    time.Duration
	LLMCategorizeTimeout time.Duration
	LLMMaxAttempts       int
	LLMBackoffBase       time.Duration
	LLMRatePerSec        float64
	LLMChunkTokens       int
	LLMConcurrency       int

	EnableLLMParsing        bool
	EnableLLMCategorization bool

	ReconcileTolerance float64
	CategoriesFile     string

	PendingTTL    time.Duration
	PendingShards int

	MaxUploadBytes int64

	PersistSink string
	BQProject   string
	BQDataset   string

	GCSBucket string

	JobWorkers int
}

// Load reads .env (if present) and the environment. Malformed values are
// logged and replaced by their defaults; the result is then validated.
func Load(log zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file loaded, relying on environment variables and defaults")
	}

	e := envReader{log: log}
	cfg := &Config{
		Port:      e.getString("PORT", "8080"),
		LogLevel:  e.getString("LOG_LEVEL", "info"),
		LogFormat: e.getString("LOG_FORMAT", "console"),

		LLMProvider:          strings.ToLower(e.getString("LLM_PROVIDER", ProviderOllama)),
		LLMEndpoint:          e.getString("LLM_ENDPOINT", "http://localhost:11434"),
		LLMModel:             e.getString("LLM_MODEL", "llama3.2:3b"),
		GeminiModel:          e.getString("GEMINI_MODEL", "gemini-2.5-flash"),
		LLMExtractTimeout:    e.getDuration("LLM_EXTRACT_TIMEOUT", 60*time.Second),
		LLMCategorizeTimeout: e.getDuration("LLM_CATEGORIZE_TIMEOUT", 15*time.Second),
		LLMMaxAttempts:       e.getInt("LLM_MAX_ATTEMPTS", 3),
		LLMBackoffBase:       e.getDuration("LLM_BACKOFF_BASE", time.Second),
		LLMRatePerSec:        e.getFloat("LLM_RATE_PER_SEC", 2),
		LLMChunkTokens:       e.getInt("LLM_CHUNK_TOKENS", 1500),
		LLMConcurrency:       e.getInt("LLM_CONCURRENCY", 2),

		EnableLLMParsing:        e.getBool("ENABLE_LLM_PARSING", true),
		EnableLLMCategorization: e.getBool("ENABLE_LLM_CATEGORIZATION", false),

		ReconcileTolerance: e.getFloat("RECONCILE_TOLERANCE", 0.000001),
		CategoriesFile:     e.getString("CATEGORIES_FILE", ""),

		PendingTTL:    e.getDuration("PENDING_TTL", 30*time.Minute),
		PendingShards: e.getInt("PENDING_SHARDS", 16),

		MaxUploadBytes: int64(e.getInt("MAX_UPLOAD_BYTES", 32*1024*1024)),

		PersistSink: strings.ToLower(e.getString("PERSIST_SINK", SinkMemory)),
		BQProject:   e.getString("BQ_PROJECT", ""),
		BQDataset:   e.getString("BQ_DATASET", "finance"),

		GCSBucket: e.getString("GCS_BUCKET", ""),

		JobWorkers: e.getInt("JOB_WORKERS", 2),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Model returns the model name for the configured provider.
func (c *Config) Model() string {
	if c.LLMProvider == ProviderGemini {
		return c.GeminiModel
	}
	return c.LLMModel
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.LLMExtractTimeout <= 0 || c.LLMCategorizeTimeout <= 0:
		return fmt.Errorf("config: LLM timeouts must be positive")
	case c.LLMMaxAttempts < 1:
		return fmt.Errorf("config: LLM_MAX_ATTEMPTS must be at least 1, got %d", c.LLMMaxAttempts)
	case c.LLMBackoffBase < 0:
		return fmt.Errorf("config: LLM_BACKOFF_BASE must not be negative")
	case c.ReconcileTolerance < 0:
		return fmt.Errorf("config: RECONCILE_TOLERANCE must not be negative")
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("config: MAX_UPLOAD_BYTES must be positive")
	case c.LLMProvider != ProviderOllama && c.LLMProvider != ProviderGemini:
		return fmt.Errorf("config: unknown LLM_PROVIDER %q", c.LLMProvider)
	case c.PersistSink != SinkMemory && c.PersistSink != SinkBigQuery:
		return fmt.Errorf("config: unknown PERSIST_SINK %q", c.PersistSink)
	case c.PersistSink == SinkBigQuery && c.BQProject == "":
		return fmt.Errorf("config: BQ_PROJECT is required when PERSIST_SINK is bigquery")
	}
	return nil
}

type envReader struct {
	log zerolog.Logger
}

func (e envReader) getString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (e envReader) getInt(key string, fallback int) int {
	raw := e.getString(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.log.Warn().Str("key", key).Str("value", raw).Int("default", fallback).Msg("Invalid integer, using default")
		return fallback
	}
	return v
}

func (e envReader) getFloat(key string, fallback float64) float64 {
	raw := e.getString(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		e.log.Warn().Str("key", key).Str("value", raw).Float64("default", fallback).Msg("Invalid number, using default")
		return fallback
	}
	return v
}

func (e envReader) getBool(key string, fallback bool) bool {
	raw := e.getString(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		e.log.Warn().Str("key", key).Str("value", raw).Bool("default", fallback).Msg("Invalid boolean, using default")
		return fallback
	}
	return v
}

func (e envReader) getDuration(key string, fallback time.Duration) time.Duration {
	raw := e.getString(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		e.log.Warn().Str("key", key).Str("value", raw).Dur("default", fallback).Msg("Invalid duration, using default")
		return fallback
	}
	return v
}
