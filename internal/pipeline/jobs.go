package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/statement-extractor/internal/extracterr"
	"github.com/dvloznov/statement-extractor/internal/gcs"
	"github.com/dvloznov/statement-extractor/internal/jobs"
)

// JobHandler returns the worker function for async extraction jobs. Fetch
// failures are retried by the queue; extraction failures are final and are
// recorded on the job with their kind and user message.
func (s *Service) JobHandler(fetcher gcs.Fetcher) jobs.JobHandler {
	return func(ctx context.Context, job *jobs.ExtractionJob) error {
		data, err := fetcher.Fetch(ctx, job.GCSURI)
		if err != nil {
			if errors.Is(err, gcs.ErrTooLarge) || errors.Is(err, gcs.ErrInvalidURI) || errors.Is(err, gcs.ErrNotFound) {
				return jobs.Permanent(fmt.Errorf("JobHandler: fetching %s: %w", job.GCSURI, err))
			}
			return fmt.Errorf("JobHandler: fetching %s: %w", job.GCSURI, err)
		}

		batch, err := s.Extract(ctx, ExtractRequest{
			Document:        data,
			BankHint:        job.BankHint,
			AccountTypeHint: job.AccountTypeHint,
			AccountName:     job.AccountName,
		})
		if err != nil {
			var xerr *extracterr.Error
			if errors.As(err, &xerr) {
				job.ErrorType = string(xerr.Kind)
				job.UserMessage = xerr.UserMessage
			}
			return jobs.Permanent(err)
		}

		job.UploadID = batch.UploadID
		job.ErrorType = ""
		job.UserMessage = ""
		return nil
	}
}
