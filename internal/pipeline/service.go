// Package pipeline orchestrates statement extraction: text extraction, bank
// detection, pattern parsing with a generative fallback, validation and the
// pending-review lifecycle of the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-extractor/internal/categories"
	"github.com/dvloznov/statement-extractor/internal/detect"
	"github.com/dvloznov/statement-extractor/internal/domain"
	"github.com/dvloznov/statement-extractor/internal/extracterr"
	"github.com/dvloznov/statement-extractor/internal/logger"
	"github.com/dvloznov/statement-extractor/internal/metrics"
	"github.com/dvloznov/statement-extractor/internal/parsers"
	"github.com/dvloznov/statement-extractor/internal/pdftext"
	"github.com/dvloznov/statement-extractor/internal/pending"
	"github.com/dvloznov/statement-extractor/internal/persist"
	"github.com/dvloznov/statement-extractor/internal/validate"
)

// Options configures a Service. Nil collaborators get in-process defaults;
// a nil LLM disables both generative paths.
type Options struct {
	Extractor TextExtractor
	Detector  *detect.Detector
	Validator *validate.Validator

	LLM         GenerativeExtractor
	Categorizer Categorizer

	EnableLLMParsing        bool
	EnableLLMCategorization bool
	Tolerance               float64

	Store   *pending.Store
	Sink    persist.Sink
	Metrics *metrics.Metrics

	// Now is used for batch timestamps; defaults to time.Now.
	Now func() time.Time
}

// ExtractRequest is one uploaded document plus the caller's hints.
type ExtractRequest struct {
	Document        []byte
	BankHint        string
	AccountTypeHint string
	AccountName     string
	// Deadline bounds the whole extraction when non-zero.
	Deadline time.Time
}

// Service is the extraction API used by the HTTP layer, the job workers and
// the CLI. It is safe for concurrent use.
type Service struct {
	pipeline  *Pipeline
	validator *validate.Validator
	store     *pending.Store
	sink      persist.Sink
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewService builds a Service and its extraction pipeline.
func NewService(opts Options) *Service {
	if opts.Extractor == nil {
		opts.Extractor = pdftext.NewExtractor()
	}
	if opts.Detector == nil {
		opts.Detector = detect.NewDefaultDetector()
	}
	if opts.Validator == nil {
		opts.Validator = validate.New(nil)
	}
	if opts.Store == nil {
		opts.Store = pending.New(pending.DefaultTTL, pending.DefaultShards)
	}
	if opts.Sink == nil {
		opts.Sink = persist.NewMemorySink()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = parsers.DefaultTolerance
	}

	p := NewPipeline(opts.Metrics,
		&ExtractTextStep{Extractor: opts.Extractor},
		&DetectBankStep{Detector: opts.Detector},
		&PatternParseStep{Tolerance: opts.Tolerance, Metrics: opts.Metrics},
		&GenerativeStep{LLM: opts.LLM, Enabled: opts.EnableLLMParsing},
		&SanitizeStep{},
		&ValidateStep{Validator: opts.Validator},
		&CategorizeStep{
			Categorizer: opts.Categorizer,
			Categories:  opts.Validator.Categories(),
			Enabled:     opts.EnableLLMCategorization,
		},
	)

	return &Service{
		pipeline:  p,
		validator: opts.Validator,
		store:     opts.Store,
		sink:      opts.Sink,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}
}

// Categories returns the category configuration used for validation.
func (s *Service) Categories() *categories.Config {
	return s.validator.Categories()
}

// Extract runs the pipeline over one document. On success the batch is
// held in the pending store under a new upload id. Every failure is an
// *extracterr.Error.
func (s *Service) Extract(ctx context.Context, req ExtractRequest) (*domain.PendingBatch, error) {
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	uploadID := uuid.NewString()
	ctx = logger.WithStringField(ctx, "upload_id", uploadID)
	log := logger.FromContext(ctx)

	state := &PipelineState{
		UploadID:        uploadID,
		Document:        req.Document,
		BankHint:        req.BankHint,
		AccountTypeHint: req.AccountTypeHint,
	}

	if err := s.pipeline.Execute(ctx, state); err != nil {
		xerr := asExtractionError(err, state)
		s.metrics.ObserveExtraction(string(state.Profile.Bank), string(xerr.Kind))
		log.Error().
			Str("kind", string(xerr.Kind)).
			Str("stage", string(xerr.Stage)).
			Str("detail", xerr.Detail).
			Msg("Extraction failed")
		return nil, xerr
	}

	created := s.now()
	batch := &domain.PendingBatch{
		UploadID:    uploadID,
		Profile:     state.Profile,
		BankName:    state.BankName(),
		AccountName: req.AccountName,
		Candidates:  state.Candidates,
		CreatedAt:   created,
	}
	if err := s.store.Put(batch); err != nil {
		return nil, extracterr.New(extracterr.KindValidationFailed, extracterr.StageValidate, batch.BankName,
			fmt.Errorf("Extract: storing pending batch: %w", err))
	}
	stored, err := s.store.Get(uploadID)
	if err != nil {
		return nil, extracterr.New(extracterr.KindValidationFailed, extracterr.StageValidate, batch.BankName,
			fmt.Errorf("Extract: reading pending batch: %w", err))
	}

	outcome := "pattern"
	if state.FallbackReason != "" {
		outcome = "generative"
	}
	s.metrics.ObserveExtraction(string(state.Profile.Bank), outcome)
	s.metrics.SetPending(s.store.Len())

	log.Info().
		Str("bank", string(state.Profile.Bank)).
		Str("source", outcome).
		Int("transactions", len(stored.Candidates)).
		Msg("Extraction accepted for review")
	return stored, nil
}

func asExtractionError(err error, state *PipelineState) *extracterr.Error {
	var xerr *extracterr.Error
	if errors.As(err, &xerr) {
		return xerr
	}
	return extracterr.Classify(err, extracterr.StageValidate, state.BankName())
}

// GetPending returns the batch held under uploadID. The error wraps
// pending.ErrNotFound for unknown or expired ids.
func (s *Service) GetPending(ctx context.Context, uploadID string) (*domain.PendingBatch, error) {
	batch, err := s.store.Get(uploadID)
	if err != nil {
		return nil, fmt.Errorf("GetPending: %w", err)
	}
	return batch, nil
}

// Confirm validates the edited candidates and hands them to the sink. A nil
// edited list confirms the batch as extracted. The batch is removed only
// after the sink succeeds; a confirm racing another confirm or a discard of
// the same id sees pending.ErrNotFound.
func (s *Service) Confirm(ctx context.Context, uploadID string, edited []domain.TransactionCandidate) (*persist.Handoff, error) {
	unlock := s.store.Lock(uploadID)
	defer unlock()

	ctx = logger.WithStringField(ctx, "upload_id", uploadID)
	log := logger.FromContext(ctx)

	batch, err := s.store.Get(uploadID)
	if err != nil {
		return nil, fmt.Errorf("Confirm: %w", err)
	}

	cands := edited
	if cands == nil {
		cands = batch.Candidates
	}
	normalized, err := s.validator.Normalize(cands)
	if err != nil {
		return nil, extracterr.Classify(fmt.Errorf("Confirm: %w", err), extracterr.StageConfirm, batch.BankName)
	}

	handoff := persist.Handoff{
		UploadID:    uploadID,
		Profile:     batch.Profile,
		BankName:    batch.BankName,
		AccountName: batch.AccountName,
		Candidates:  normalized,
		ConfirmedAt: s.now(),
	}
	if err := s.sink.Save(ctx, handoff); err != nil {
		return nil, fmt.Errorf("Confirm: saving handoff: %w", err)
	}

	s.store.Remove(uploadID)
	s.metrics.AddConfirmed(len(normalized))
	s.metrics.SetPending(s.store.Len())

	log.Info().Int("transactions", len(normalized)).Msg("Batch confirmed")
	return &handoff, nil
}

// Discard drops the batch held under uploadID. Unknown ids are ignored.
func (s *Service) Discard(ctx context.Context, uploadID string) {
	unlock := s.store.Lock(uploadID)
	defer unlock()

	s.store.Remove(uploadID)
	s.metrics.SetPending(s.store.Len())

	log := logger.FromContext(ctx)
	log.Info().Str("upload_id", uploadID).Msg("Batch discarded")
}
