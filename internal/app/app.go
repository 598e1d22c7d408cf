// Package app assembles the extraction service from configuration. It is
// shared by the HTTP server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-extractor/internal/categories"
	"github.com/dvloznov/statement-extractor/internal/config"
	"github.com/dvloznov/statement-extractor/internal/llm"
	"github.com/dvloznov/statement-extractor/internal/metrics"
	"github.com/dvloznov/statement-extractor/internal/pending"
	"github.com/dvloznov/statement-extractor/internal/persist"
	"github.com/dvloznov/statement-extractor/internal/pipeline"
	"github.com/dvloznov/statement-extractor/internal/validate"
)

// App holds the assembled service and the resources it owns.
type App struct {
	Config  *config.Config
	Metrics *metrics.Metrics
	Service *pipeline.Service
	Sink    persist.Sink

	closers []func() error
}

// New builds the service described by cfg. The caller must Close the App.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New()}

	cats := categories.Default()
	if cfg.CategoriesFile != "" {
		loaded, err := categories.LoadFile(cfg.CategoriesFile)
		if err != nil {
			return nil, fmt.Errorf("app.New: %w", err)
		}
		cats = loaded
	}

	sink, err := a.newSink(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.Sink = sink

	gen, err := NewGenerator(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}

	client := llm.NewClient(gen, cfg.Model(),
		llm.WithRetryPolicy(llm.RetryPolicy{
			MaxAttempts:    cfg.LLMMaxAttempts,
			Backoff:        llm.ExponentialBackoff(cfg.LLMBackoffBase),
			RetryableKinds: []error{llm.ErrTimeout, llm.ErrConnection},
		}),
		llm.WithTimeouts(cfg.LLMExtractTimeout, cfg.LLMCategorizeTimeout),
		llm.WithRateLimit(cfg.LLMRatePerSec),
		llm.WithChunkTokens(cfg.LLMChunkTokens),
		llm.WithConcurrency(cfg.LLMConcurrency),
		llm.WithMetrics(a.Metrics),
	)

	a.Service = pipeline.NewService(pipeline.Options{
		Validator:               validate.New(cats),
		LLM:                     client,
		Categorizer:             client,
		EnableLLMParsing:        cfg.EnableLLMParsing,
		EnableLLMCategorization: cfg.EnableLLMCategorization,
		Tolerance:               cfg.ReconcileTolerance,
		Store:                   pending.New(cfg.PendingTTL, cfg.PendingShards),
		Sink:                    sink,
		Metrics:                 a.Metrics,
	})

	log.Info().
		Str("llm_provider", cfg.LLMProvider).
		Str("llm_model", cfg.Model()).
		Bool("llm_parsing", cfg.EnableLLMParsing).
		Bool("llm_categorization", cfg.EnableLLMCategorization).
		Str("sink", cfg.PersistSink).
		Msg("Extraction service ready")
	return a, nil
}

func (a *App) newSink(ctx context.Context, cfg *config.Config) (persist.Sink, error) {
	if cfg.PersistSink != config.SinkBigQuery {
		return persist.NewMemorySink(), nil
	}
	bq, err := persist.NewBigQuerySink(ctx, cfg.BQProject, cfg.BQDataset)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, bq.Close)
	return bq, nil
}

// NewGenerator returns the text-generation backend selected by
// cfg.LLMProvider.
func NewGenerator(ctx context.Context, cfg *config.Config) (llm.Generator, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return llm.NewGeminiBackend(ctx)
	case config.ProviderOllama:
		return llm.NewOllamaBackend(cfg.LLMEndpoint, &http.Client{}), nil
	default:
		return nil, fmt.Errorf("NewGenerator: unknown provider %q", cfg.LLMProvider)
	}
}

// Close releases the resources owned by the App.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
