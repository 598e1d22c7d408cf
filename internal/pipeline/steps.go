package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-extractor/internal/categories"
	"github.com/dvloznov/statement-extractor/internal/detect"
	"github.com/dvloznov/statement-extractor/internal/domain"
	"github.com/dvloznov/statement-extractor/internal/extracterr"
	"github.com/dvloznov/statement-extractor/internal/llm"
	"github.com/dvloznov/statement-extractor/internal/logger"
	"github.com/dvloznov/statement-extractor/internal/metrics"
	"github.com/dvloznov/statement-extractor/internal/normalize"
	"github.com/dvloznov/statement-extractor/internal/parsers"
	"github.com/dvloznov/statement-extractor/internal/pdftext"
	"github.com/dvloznov/statement-extractor/internal/sanitize"
	"github.com/dvloznov/statement-extractor/internal/validate"
)

// Reasons for leaving the pattern path.
const (
	FallbackUnknownBank    = "unknown_bank"
	FallbackUnsupported    = "unsupported_profile"
	FallbackNoTransactions = "no_transactions"
	FallbackReconciliation = "reconciliation"
	FallbackParseError     = "parse_error"
)

// TextExtractor turns document bytes into page text.
type TextExtractor interface {
	ExtractPages(data []byte) ([]string, error)
}

// GenerativeExtractor returns raw model output for the statement pages.
type GenerativeExtractor interface {
	Extract(ctx context.Context, pages []string, bank, accountType string) (string, error)
}

// Categorizer picks one category from allowed for a transaction.
type Categorizer interface {
	Categorize(ctx context.Context, description string, amount decimal.Decimal, allowed []string) (string, error)
}

// PipelineStep represents a single step in the extraction pipeline.
type PipelineStep interface {
	Stage() extracterr.Stage
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps for one
// document.
type PipelineState struct {
	UploadID        string
	Document        []byte
	BankHint        string
	AccountTypeHint string

	Pages   []string
	Profile domain.StatementProfile

	// Period supplies the year for day-month dates in model output.
	Period normalize.Period

	// FallbackReason is set when the pattern path could not produce a
	// reconciled result.
	FallbackReason string
	RawOutput      string
	Records        []domain.RawRecord
	Rejected       []validate.Rejected

	Candidates []domain.TransactionCandidate
}

// BankName is the bank name shown in messages and prompts: the detected
// bank, else the caller's hint.
func (s *PipelineState) BankName() string {
	if name := s.Profile.Bank.DisplayName(); name != "" {
		return name
	}
	return strings.TrimSpace(s.BankHint)
}

// AccountTypeName is the account type shown in prompts.
func (s *PipelineState) AccountTypeName() string {
	if s.Profile.AccountType != "" && s.Profile.AccountType != domain.AccountUnknown {
		return s.Profile.AccountType.DisplayName()
	}
	return strings.TrimSpace(s.AccountTypeHint)
}

// ExtractTextStep reads page text from the document and rejects documents
// with too little text to be a statement.
type ExtractTextStep struct {
	Extractor TextExtractor
}

func (s *ExtractTextStep) Stage() extracterr.Stage { return extracterr.StageExtract }

func (s *ExtractTextStep) Execute(ctx context.Context, state *PipelineState) error {
	pages, err := s.Extractor.ExtractPages(state.Document)
	if err != nil {
		return extracterr.Classify(fmt.Errorf("ExtractTextStep: %w", err), extracterr.StageExtract, state.BankName())
	}
	if !pdftext.Readable(pages) {
		return extracterr.New(extracterr.KindInvalidPDF, extracterr.StageExtract, state.BankName(),
			fmt.Errorf("ExtractTextStep: fewer than %d readable characters: %w", pdftext.MinTextChars, pdftext.ErrUnreadable))
	}
	state.Pages = pages
	return nil
}

// DetectBankStep picks the statement profile. The caller's hint is used only
// when the document text does not identify a bank.
type DetectBankStep struct {
	Detector *detect.Detector
}

func (s *DetectBankStep) Stage() extracterr.Stage { return extracterr.StageDetect }

func (s *DetectBankStep) Execute(ctx context.Context, state *PipelineState) error {
	profile := s.Detector.Detect(state.Pages)
	if !profile.Known() {
		if hinted, ok := detect.ResolveHint(state.BankHint, state.AccountTypeHint); ok {
			profile = hinted
		}
	}
	state.Profile = profile
	state.Period, _ = normalize.StatementPeriod(strings.Join(state.Pages, "\n"))

	log := logger.FromContext(ctx)
	log.Debug().
		Str("bank", string(profile.Bank)).
		Str("account_type", string(profile.AccountType)).
		Float64("confidence", profile.Confidence).
		Bool("hinted", profile.Hinted).
		Msg("Statement profile selected")
	return nil
}

// PatternParseStep runs the bank-specific parser. It never fails: a missing
// parser, an empty parse or a reconciliation failure sets FallbackReason.
type PatternParseStep struct {
	Tolerance float64
	Metrics   *metrics.Metrics
}

func (s *PatternParseStep) Stage() extracterr.Stage { return extracterr.StagePattern }

func (s *PatternParseStep) Execute(ctx context.Context, state *PipelineState) error {
	if !state.Profile.Known() {
		s.fallback(ctx, state, FallbackUnknownBank, nil)
		return nil
	}

	parser, err := parsers.New(state.Profile, s.Tolerance)
	if err != nil {
		s.fallback(ctx, state, FallbackUnsupported, err)
		return nil
	}

	res, err := parser.Parse(state.Pages)
	switch {
	case err == nil:
		state.Candidates = res.Candidates
	case errors.Is(err, parsers.ErrNoTransactions):
		s.fallback(ctx, state, FallbackNoTransactions, err)
	case errors.Is(err, parsers.ErrReconciliation):
		s.fallback(ctx, state, FallbackReconciliation, err)
	default:
		s.fallback(ctx, state, FallbackParseError, err)
	}
	return nil
}

func (s *PatternParseStep) fallback(ctx context.Context, state *PipelineState, reason string, cause error) {
	state.FallbackReason = reason
	state.Candidates = nil
	s.Metrics.ObserveFallback(reason)

	log := logger.FromContext(ctx)
	log.Warn().Err(cause).Str("reason", reason).Msg("Falling back to generative extraction")
}

// GenerativeStep asks the model for the transactions when the pattern path
// fell back. With generative parsing disabled, an empty pattern parse is
// reported as no transactions and every other fallback as an unavailable
// service.
type GenerativeStep struct {
	LLM     GenerativeExtractor
	Enabled bool
}

func (s *GenerativeStep) Stage() extracterr.Stage { return extracterr.StageGenerative }

func (s *GenerativeStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.FallbackReason == "" {
		return nil
	}
	bank := state.BankName()

	if !s.Enabled || s.LLM == nil {
		if state.FallbackReason == FallbackNoTransactions {
			return extracterr.New(extracterr.KindNoTransactions, extracterr.StagePattern, bank,
				fmt.Errorf("GenerativeStep: generative parsing disabled: %w", parsers.ErrNoTransactions))
		}
		return extracterr.New(extracterr.KindLLMUnavailable, extracterr.StageGenerative, bank,
			fmt.Errorf("GenerativeStep: %s: %w", state.FallbackReason, llm.ErrDisabled))
	}

	raw, err := s.LLM.Extract(ctx, state.Pages, bank, state.AccountTypeName())
	if err != nil {
		return extracterr.Classify(fmt.Errorf("GenerativeStep: %w", err), extracterr.StageGenerative, bank)
	}
	state.RawOutput = raw
	return nil
}

// SanitizeStep recovers transaction records from the model output.
type SanitizeStep struct{}

func (s *SanitizeStep) Stage() extracterr.Stage { return extracterr.StageSanitize }

func (s *SanitizeStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.FallbackReason == "" {
		return nil
	}
	records, err := sanitize.Sanitize(state.RawOutput)
	if err != nil {
		return extracterr.Classify(fmt.Errorf("SanitizeStep: %w", err), extracterr.StageSanitize, state.BankName())
	}
	state.Records = records

	log := logger.FromContext(ctx)
	log.Debug().Int("records", len(records)).Msg("Recovered records from model output")
	return nil
}

// ValidateStep converts recovered records into candidates when the
// generative path ran, then normalizes and deduplicates.
type ValidateStep struct {
	Validator *validate.Validator
}

func (s *ValidateStep) Stage() extracterr.Stage { return extracterr.StageValidate }

func (s *ValidateStep) Execute(ctx context.Context, state *PipelineState) error {
	bank := state.BankName()
	log := logger.FromContext(ctx)

	cands := state.Candidates
	if state.FallbackReason != "" {
		var err error
		cands, state.Rejected, err = s.Validator.FromRecords(state.Records, domain.SourceGenerative, state.Period)
		if err != nil {
			return extracterr.Classify(fmt.Errorf("ValidateStep: %w", err), extracterr.StageValidate, bank)
		}
		if len(state.Rejected) > 0 {
			log.Warn().Int("rejected", len(state.Rejected)).Msg("Dropped invalid records from model output")
		}
	}

	normalized, err := s.Validator.Normalize(cands)
	if err != nil {
		return extracterr.Classify(fmt.Errorf("ValidateStep: %w", err), extracterr.StageValidate, bank)
	}
	state.Candidates = normalized
	return nil
}

// CategorizeStep asks the model to categorize candidates the keyword rules
// left uncategorized. Failures and answers outside the candidate's direction
// leave the direction's fallback category.
type CategorizeStep struct {
	Categorizer Categorizer
	Categories  *categories.Config
	Enabled     bool
}

func (s *CategorizeStep) Stage() extracterr.Stage { return extracterr.StageCategorize }

func (s *CategorizeStep) Execute(ctx context.Context, state *PipelineState) error {
	if !s.Enabled || s.Categorizer == nil {
		return nil
	}
	log := logger.FromContext(ctx)

	failed := 0
	for i := range state.Candidates {
		c := &state.Candidates[i]
		if c.Category != categories.Uncategorized {
			continue
		}
		category, err := s.Categorizer.Categorize(ctx, c.Description, c.Amount, s.Categories.Allowed(c.Direction))
		if err != nil {
			failed++
			category = s.Categories.Fallback(c.Direction)
		}
		if !s.Categories.KnownFor(category, c.Direction) {
			category = s.Categories.Fallback(c.Direction)
		}
		c.Category = category
	}
	if failed > 0 {
		log.Warn().Int("failed", failed).Msg("Generative categorization failed for some transactions")
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps   []PipelineStep
	metrics *metrics.Metrics
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(m *metrics.Metrics, steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps, metrics: m}
}

// Execute runs all steps in the pipeline sequentially. The first failing
// step ends the run; there is no retry at this level.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1,
				extracterr.Classify(err, step.Stage(), state.BankName()))
		}

		stepCtx := logger.WithStringField(ctx, "stage", string(step.Stage()))
		if state.Profile.Bank != "" {
			stepCtx = logger.WithStringField(stepCtx, "bank", string(state.Profile.Bank))
		}

		start := time.Now()
		err := step.Execute(stepCtx, state)
		p.metrics.ObserveStage(string(step.Stage()), start)
		if err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}

		log := logger.FromContext(stepCtx)
		log.Debug().Dur("took", time.Since(start)).Msg("Stage completed")
	}
	return nil
}
