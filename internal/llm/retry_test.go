package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := ExponentialBackoff(time.Second)
	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 4*time.Second, backoff(2))
	assert.Equal(t, 8*time.Second, backoff(3))
}

func TestRetryPolicy_Do(t *testing.T) {
	errOther := errors.New("boom")

	tests := []struct {
		name         string
		results      []error
		wantErr      error
		wantAttempts int
		wantSleeps   []time.Duration
	}{
		{
			name:         "success first time",
			results:      []error{nil},
			wantAttempts: 1,
		},
		{
			name:         "retries timeouts then succeeds",
			results:      []error{ErrTimeout, ErrConnection, nil},
			wantAttempts: 3,
			wantSleeps:   []time.Duration{2 * time.Second, 4 * time.Second},
		},
		{
			name:         "exhausts attempts",
			results:      []error{ErrTimeout, ErrTimeout, ErrTimeout},
			wantErr:      ErrTimeout,
			wantAttempts: 3,
			wantSleeps:   []time.Duration{2 * time.Second, 4 * time.Second},
		},
		{
			name:         "non-retryable fails immediately",
			results:      []error{ErrEmptyResponse},
			wantErr:      ErrEmptyResponse,
			wantAttempts: 1,
		},
		{
			name:         "unknown error is not retried",
			results:      []error{ErrConnection, errOther},
			wantErr:      errOther,
			wantAttempts: 2,
			wantSleeps:   []time.Duration{2 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			attempts := 0
			err := DefaultRetryPolicy().Do(context.Background(), clock, func(ctx context.Context, attempt int) error {
				attempts++
				assert.Equal(t, attempts, attempt)
				return tt.results[attempt-1]
			})

			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantAttempts, attempts)
			assert.Equal(t, tt.wantSleeps, clock.Slept())
		})
	}
}

func TestRetryPolicy_NoRetryPastDeadline(t *testing.T) {
	clock := newFakeClock()
	ctx, cancel := context.WithDeadline(context.Background(), clock.Now().Add(3*time.Second))
	defer cancel()

	attempts := 0
	err := DefaultRetryPolicy().Do(ctx, clock, func(ctx context.Context, attempt int) error {
		attempts++
		return ErrConnection
	})

	// 2s backoff fits before the deadline, the 4s one does not.
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []time.Duration{2 * time.Second}, clock.Slept())
}

func TestRetryPolicy_ContextAlreadyDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := DefaultRetryPolicy().Do(ctx, newFakeClock(), func(ctx context.Context, attempt int) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, called)
}

func TestRetryPolicy_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	err := RetryPolicy{}.Do(context.Background(), newFakeClock(), func(ctx context.Context, attempt int) error {
		attempts++
		return ErrTimeout
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, attempts)
}
