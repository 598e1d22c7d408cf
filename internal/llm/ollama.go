package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// OllamaBackend calls an Ollama server's /api/generate endpoint.
type OllamaBackend struct {
	endpoint string
	client   *http.Client
}

// NewOllamaBackend creates a backend for endpoint, e.g.
// "http://localhost:11434". A nil client uses http.DefaultClient.
func NewOllamaBackend(endpoint string, client *http.Client) *OllamaBackend {
	if client == nil {
		client = http.DefaultClient
	}
	endpoint = strings.TrimRight(endpoint, "/")
	if !strings.HasSuffix(endpoint, "/api/generate") {
		endpoint += "/api/generate"
	}
	return &OllamaBackend{endpoint: endpoint, client: client}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Generate implements Generator.
func (o *OllamaBackend) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaRequest{Model: req.Model, Prompt: req.Prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("OllamaBackend.Generate: encoding request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("OllamaBackend.Generate: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, truncate(string(data), 200))
	}

	var out ollamaResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: invalid response format: %v", ErrUnavailable, err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, out.Error)
	}
	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// classifyTransportError maps an HTTP client failure onto ErrTimeout or
// ErrConnection.
func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
