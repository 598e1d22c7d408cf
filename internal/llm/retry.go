package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Clock abstracts time so retry behaviour can be tested without sleeping.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryPolicy decides how often and how long apart an operation is retried.
type RetryPolicy struct {
	MaxAttempts int
	// Backoff returns the delay after the given failed attempt (1-based).
	Backoff func(attempt int) time.Duration
	// RetryableKinds lists the errors worth retrying; anything else fails
	// immediately.
	RetryableKinds []error
}

// DefaultRetryPolicy retries timeouts and connection failures three times in
// total, waiting 2s then 4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		Backoff:        ExponentialBackoff(time.Second),
		RetryableKinds: []error{ErrTimeout, ErrConnection},
	}
}

// ExponentialBackoff waits base * 2^attempt after each failed attempt.
func ExponentialBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt > 30 {
			attempt = 30
		}
		return base << uint(attempt)
	}
}

// Retryable reports whether err matches one of the retryable kinds.
func (p RetryPolicy) Retryable(err error) bool {
	for _, kind := range p.RetryableKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempts run out. It never starts an attempt or a backoff that the context
// deadline would cut short: in that case it returns ErrTimeout at once.
func (p RetryPolicy) Do(ctx context.Context, clock Clock, op func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	if clock == nil {
		clock = RealClock()
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return deadlineError(err, last)
		}

		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		last = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return deadlineError(ctxErr, last)
		}
		if !p.Retryable(err) || attempt == attempts {
			break
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		if deadline, ok := ctx.Deadline(); ok && clock.Now().Add(delay).After(deadline) {
			return deadlineError(context.DeadlineExceeded, last)
		}
		if err := clock.Sleep(ctx, delay); err != nil {
			return deadlineError(err, last)
		}
	}

	if !p.Retryable(last) {
		return last
	}
	return fmt.Errorf("after %d attempts: %w", attempts, last)
}

func deadlineError(ctxErr, last error) error {
	if last == nil {
		return fmt.Errorf("%w: %w", ErrTimeout, ctxErr)
	}
	return fmt.Errorf("%w: %w (last error: %v)", ErrTimeout, ctxErr, last)
}
