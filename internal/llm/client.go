package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dvloznov/statement-extractor/internal/categories"
	"github.com/dvloznov/statement-extractor/internal/logger"
	"github.com/dvloznov/statement-extractor/internal/metrics"
)

const (
	DefaultExtractTimeout    = 60 * time.Second
	DefaultCategorizeTimeout = 15 * time.Second
	DefaultChunkTokens       = 1500
	DefaultConcurrency       = 2
)

// Client runs extraction and categorization prompts against a Generator
// under a retry policy and a rate limit.
type Client struct {
	gen               Generator
	model             string
	policy            RetryPolicy
	clock             Clock
	limiter           *rate.Limiter
	extractTimeout    time.Duration
	categorizeTimeout time.Duration
	chunkTokens       int
	concurrency       int
	metrics           *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

func WithRetryPolicy(p RetryPolicy) Option { return func(c *Client) { c.policy = p } }

func WithClock(clock Clock) Option { return func(c *Client) { c.clock = clock } }

// WithRateLimit allows perSecond calls with a burst of one. A non-positive
// rate disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

func WithTimeouts(extract, categorize time.Duration) Option {
	return func(c *Client) {
		c.extractTimeout = extract
		c.categorizeTimeout = categorize
	}
}

func WithChunkTokens(n int) Option { return func(c *Client) { c.chunkTokens = n } }

func WithConcurrency(n int) Option { return func(c *Client) { c.concurrency = n } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Client) { c.metrics = m } }

// NewClient creates a Client for the given backend and model.
func NewClient(gen Generator, model string, opts ...Option) *Client {
	c := &Client{
		gen:               gen,
		model:             model,
		policy:            DefaultRetryPolicy(),
		clock:             RealClock(),
		limiter:           rate.NewLimiter(rate.Inf, 1),
		extractTimeout:    DefaultExtractTimeout,
		categorizeTimeout: DefaultCategorizeTimeout,
		chunkTokens:       DefaultChunkTokens,
		concurrency:       DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.concurrency < 1 {
		c.concurrency = 1
	}
	return c
}

// Extract sends the statement text to the model chunk by chunk and returns
// the raw outputs joined in chunk order. Any chunk failing fails the whole
// call; no partial output is returned.
func (c *Client) Extract(ctx context.Context, pages []string, bank, accountType string) (string, error) {
	chunks := ChunkLines(strings.Join(pages, "\n"), c.chunkTokens)
	if len(chunks) == 0 {
		return "", fmt.Errorf("Extract: no statement text: %w", ErrEmptyResponse)
	}

	log := logger.FromContext(ctx)
	log.Debug().Int("chunks", len(chunks)).Str("model", c.model).Msg("Starting generative extraction")

	outputs := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			prompt := ExtractPrompt(chunk, bank, accountType, i+1, len(chunks))
			out, err := c.generate(gctx, prompt, c.extractTimeout)
			if err != nil {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("Extract: %w", err)
	}

	return strings.Join(outputs, "\n"), nil
}

// Categorize asks the model for one category from allowed. An answer outside
// allowed becomes categories.Other.
func (c *Client) Categorize(ctx context.Context, description string, amount decimal.Decimal, allowed []string) (string, error) {
	out, err := c.generate(ctx, CategorizePrompt(description, amount, allowed), c.categorizeTimeout)
	if err != nil {
		return categories.Other, fmt.Errorf("Categorize: %w", err)
	}

	answer := strings.Trim(strings.TrimSpace(out), "\"'.")
	for _, name := range allowed {
		if strings.EqualFold(answer, name) {
			return name, nil
		}
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("answer", answer).Msg("Model returned a category outside the allowed set")
	return categories.Other, nil
}

func (c *Client) generate(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	var out string
	err := c.policy.Do(ctx, c.clock, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limiter: %w", ErrTimeout, err)
		}

		s, err := c.gen.Generate(ctx, Request{Prompt: prompt, Model: c.model, Timeout: timeout})
		if err == nil && strings.TrimSpace(s) == "" {
			err = ErrEmptyResponse
		}
		c.metrics.ObserveLLMAttempt(attemptResult(err))
		if err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Int("attempt", attempt).Msg("Generative call failed")
			return err
		}
		out = s
		return nil
	})
	return out, err
}

func attemptResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConnection):
		return "connection_error"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	default:
		return "error"
	}
}
