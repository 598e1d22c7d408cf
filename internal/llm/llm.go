// Package llm is the client for the external text-generation service used to
// extract transactions when no pattern parser applies, and to categorize
// transactions the keyword rules miss.
package llm

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when a call, or the caller's deadline, expires.
	ErrTimeout = errors.New("llm: request timed out")
	// ErrConnection is returned when the service cannot be reached.
	ErrConnection = errors.New("llm: connection failed")
	// ErrUnavailable is returned when the service answers with an error.
	ErrUnavailable = errors.New("llm: service unavailable")
	// ErrEmptyResponse is returned when the service returns no text.
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrDisabled is returned when generative parsing is switched off.
	ErrDisabled = errors.New("llm: generative parsing disabled")
)

// Request is one generation call.
type Request struct {
	Prompt  string
	Model   string
	Timeout time.Duration
}

// Generator is a text-generation backend. Implementations map their failures
// onto ErrTimeout, ErrConnection, ErrUnavailable and ErrEmptyResponse.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
