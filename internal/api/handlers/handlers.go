package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-extractor/internal/api/middleware"
	"github.com/dvloznov/statement-extractor/internal/categories"
	"github.com/dvloznov/statement-extractor/internal/domain"
	"github.com/dvloznov/statement-extractor/internal/extracterr"
	"github.com/dvloznov/statement-extractor/internal/gcs"
	"github.com/dvloznov/statement-extractor/internal/jobs"
	"github.com/dvloznov/statement-extractor/internal/pending"
	"github.com/dvloznov/statement-extractor/internal/persist"
	"github.com/dvloznov/statement-extractor/internal/pipeline"
)

// errorTypeUnexpected labels failures that are not extraction errors.
const errorTypeUnexpected = "unexpected_error"

// ExtractionService is the extraction API the handlers depend on.
// *pipeline.Service implements it.
type ExtractionService interface {
	Extract(ctx context.Context, req pipeline.ExtractRequest) (*domain.PendingBatch, error)
	GetPending(ctx context.Context, uploadID string) (*domain.PendingBatch, error)
	Confirm(ctx context.Context, uploadID string, edited []domain.TransactionCandidate) (*persist.Handoff, error)
	Discard(ctx context.Context, uploadID string)
}

var _ ExtractionService = (*pipeline.Service)(nil)

// StatementsHandler handles statement upload and pending-review endpoints.
type StatementsHandler struct {
	svc      ExtractionService
	maxBytes int64
	timeout  time.Duration
	log      zerolog.Logger
}

// NewStatementsHandler creates a new statements handler. timeout bounds each
// synchronous extraction; zero means no bound beyond the request context.
func NewStatementsHandler(svc ExtractionService, maxBytes int64, timeout time.Duration, log zerolog.Logger) *StatementsHandler {
	return &StatementsHandler{
		svc:      svc,
		maxBytes: maxBytes,
		timeout:  timeout,
		log:      log,
	}
}

type batchResponse struct {
	UploadID         string                        `json:"upload_id"`
	Bank             string                        `json:"bank"`
	AccountType      domain.AccountType            `json:"account_type"`
	AccountName      string                        `json:"account_name,omitempty"`
	TransactionCount int                           `json:"transaction_count"`
	Transactions     []domain.TransactionCandidate `json:"transactions"`
	ExpiresAt        time.Time                     `json:"expires_at"`
}

func newBatchResponse(b *domain.PendingBatch) batchResponse {
	txs := b.Candidates
	if txs == nil {
		txs = []domain.TransactionCandidate{}
	}
	return batchResponse{
		UploadID:         b.UploadID,
		Bank:             b.BankName,
		AccountType:      b.Profile.AccountType,
		AccountName:      b.AccountName,
		TransactionCount: len(txs),
		Transactions:     txs,
		ExpiresAt:        b.ExpiresAt,
	}
}

// Upload handles POST /api/statements
func (h *StatementsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	document, err := h.readDocument(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFailure(w, http.StatusRequestEntityTooLarge, err.Error(), errorTypeUnexpected,
				"The uploaded file is too large.")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "A PDF file is required")
		return
	}

	req := pipeline.ExtractRequest{
		Document:        document,
		BankHint:        r.FormValue("bank"),
		AccountTypeHint: r.FormValue("account_type"),
		AccountName:     r.FormValue("account_name"),
	}
	if h.timeout > 0 {
		req.Deadline = time.Now().Add(h.timeout)
	}

	batch, err := h.svc.Extract(ctx, req)
	if err != nil {
		writeServiceError(w, err, "Failed to extract statement")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, newBatchResponse(batch))
}

// readDocument returns the "file" part of a multipart form, or the raw body
// for any other content type.
func (h *StatementsHandler) readDocument(r *http.Request) ([]byte, error) {
	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(h.maxBytes); err != nil {
			return nil, err
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, err
		}
		defer file.Close()
		src = file
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty document")
	}
	return data, nil
}

// GetPending handles GET /api/pending/{id}
func (h *StatementsHandler) GetPending(w http.ResponseWriter, r *http.Request, uploadID string) {
	batch, err := h.svc.GetPending(r.Context(), uploadID)
	if err != nil {
		writeServiceError(w, err, "Failed to load pending transactions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, newBatchResponse(batch))
}

// Confirm handles POST /api/pending/{id}/confirm
func (h *StatementsHandler) Confirm(w http.ResponseWriter, r *http.Request, uploadID string) {
	var req struct {
		Transactions []domain.TransactionCandidate `json:"transactions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	handoff, err := h.svc.Confirm(r.Context(), uploadID, req.Transactions)
	if err != nil {
		h.log.Error().Err(err).Str("upload_id", uploadID).Msg("Failed to confirm transactions")
		writeServiceError(w, err, "Failed to save transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"upload_id":   handoff.UploadID,
		"saved_count": len(handoff.Candidates),
		"status":      "confirmed",
	})
}

// Discard handles DELETE /api/pending/{id}
func (h *StatementsHandler) Discard(w http.ResponseWriter, r *http.Request, uploadID string) {
	h.svc.Discard(r.Context(), uploadID)
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"upload_id": uploadID,
		"status":    "discarded",
	})
}

// writeServiceError maps service errors onto status codes: unknown batches
// are 404, extraction errors 422 with their kind and message, anything else
// 500 with fallback as the message.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var xerr *extracterr.Error
	switch {
	case errors.Is(err, pending.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Pending transactions not found or expired")
	case errors.As(err, &xerr):
		writeFailure(w, http.StatusUnprocessableEntity, xerr.Detail, string(xerr.Kind), xerr.UserMessage)
	default:
		writeFailure(w, http.StatusInternalServerError, fallback, errorTypeUnexpected,
			extracterr.Message("", ""))
	}
}

func writeFailure(w http.ResponseWriter, status int, detail, errorType, userMessage string) {
	middleware.WriteJSON(w, status, map[string]string{
		"error":        detail,
		"error_type":   errorType,
		"user_message": userMessage,
	})
}

// JobsHandler handles async extraction job endpoints.
type JobsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	log       zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		publisher: publisher,
		store:     store,
		log:       log,
	}
}

// Enqueue handles POST /api/statements/jobs
func (h *JobsHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GCSURI      string `json:"gcs_uri"`
		Bank        string `json:"bank"`
		AccountType string `json:"account_type"`
		AccountName string `json:"account_name"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, _, err := gcs.ParseURI(req.GCSURI); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "gcs_uri must look like gs://bucket/object")
		return
	}

	job := &jobs.ExtractionJob{
		GCSURI:          req.GCSURI,
		BankHint:        req.Bank,
		AccountTypeHint: req.AccountType,
		AccountName:     req.AccountName,
	}
	if err := h.publisher.Publish(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue extraction job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue extraction job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("gcs_uri", job.GCSURI).Msg("Extraction job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		UploadID: query.Get("upload_id"),
		Status:   jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// CategoriesHandler serves the configured category lists.
type CategoriesHandler struct {
	cats *categories.Config
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(cats *categories.Config) *CategoriesHandler {
	return &CategoriesHandler{cats: cats}
}

// ListCategories handles GET /api/categories
func (h *CategoriesHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string][]string{
		"expense": h.cats.Allowed(domain.DirectionDebit),
		"income":  h.cats.Allowed(domain.DirectionCredit),
	})
}
