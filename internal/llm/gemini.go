package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured for the Gemini
// backend.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiBackend generates text with the Gemini API.
type GeminiBackend struct {
	client *genai.Client
}

// NewGeminiBackend creates a client using the environment's credentials
// (GOOGLE_API_KEY, or Vertex AI settings).
func NewGeminiBackend(ctx context.Context) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiBackend: create genai client: %w", err)
	}
	return &GeminiBackend{client: client}, nil
}

// Generate implements Generator.
func (g *GeminiBackend) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	model := req.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: req.Prompt}},
		},
	}
	temperature := float32(0)
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
		Temperature: &temperature,
	})
	if err != nil {
		var netErr net.Error
		if ctx.Err() != nil || errors.As(err, &netErr) {
			return "", classifyTransportError(ctx, err)
		}
		return "", fmt.Errorf("%w: generate content: %v", ErrUnavailable, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
