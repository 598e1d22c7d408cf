package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/statement-extractor/internal/jobs"
	"github.com/dvloznov/statement-extractor/internal/logger"
	"github.com/google/uuid"
)

// DefaultMaxRetries applies to jobs published without MaxRetries.
const DefaultMaxRetries = 2

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Jobs are lost on restart.
type Queue struct {
	jobChan   chan *jobs.ExtractionJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool
	workers   int
	backoff   func(retry int) time.Duration
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithRetryBackoff replaces the linear one second per retry backoff.
func WithRetryBackoff(fn func(retry int) time.Duration) QueueOption {
	return func(q *Queue) { q.backoff = fn }
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before Publish blocks;
// workers is the number of jobs processed concurrently.
func NewQueue(bufferSize, workers int, store jobs.JobStore, opts ...QueueOption) *Queue {
	if workers < 1 {
		workers = 1
	}
	q := &Queue{
		jobChan:   make(chan *jobs.ExtractionJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   workers,
		backoff: func(retry int) time.Duration {
			return time.Duration(retry) * time.Second
		},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Publish implements the Publisher interface.
// The lock is not held while waiting for buffer space, so Stop can close the
// queue under a blocked Publish.
func (q *Queue) Publish(ctx context.Context, job *jobs.ExtractionJob) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()

	if closed {
		return fmt.Errorf("queue is closed")
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = DefaultMaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements the Consumer interface.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// processJob runs the handler once and records the outcome. Failures are
// re-enqueued after a backoff unless permanent or out of retries.
func (q *Queue) processJob(ctx context.Context, job *jobs.ExtractionJob, handler jobs.JobHandler) {
	jobCtx := logger.WithStringField(ctx, "job_id", job.JobID)
	log := logger.FromContext(jobCtx)

	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now

	q.save(jobCtx, job)

	err := handler(jobCtx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err != nil {
		job.Error = err.Error()

		if !jobs.IsPermanent(err) && job.RetryCount < job.MaxRetries {
			job.RetryCount++
			job.Status = jobs.JobStatusRetrying
			log.Warn().Err(err).Int("retry", job.RetryCount).Msg("Job failed, scheduling retry")
			q.save(jobCtx, job)

			retry := *job
			time.AfterFunc(q.backoff(retry.RetryCount), func() {
				retry.Status = jobs.JobStatusPending
				retry.StartedAt = nil
				retry.CompletedAt = nil
				if err := q.Publish(ctx, &retry); err != nil {
					log.Error().Err(err).Msg("Failed to re-enqueue job")
				}
			})
			return
		}
		job.Status = jobs.JobStatusFailed
		log.Error().Err(err).Msg("Job failed")
	} else {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		log.Info().Str("upload_id", job.UploadID).Msg("Job completed")
	}

	q.save(jobCtx, job)
}

func (q *Queue) save(ctx context.Context, job *jobs.ExtractionJob) {
	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
