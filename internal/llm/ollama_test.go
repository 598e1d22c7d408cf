package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaBackend_Generate(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"response": "  [] \n", "done": true})
	}))
	defer srv.Close()

	out, err := NewOllamaBackend(srv.URL+"/", srv.Client()).Generate(context.Background(), Request{Prompt: "p", Model: "llama3.2:3b"})
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
	assert.Equal(t, ollamaRequest{Model: "llama3.2:3b", Prompt: "p", Stream: false}, got)
}

func TestOllamaBackend_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
		want    error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model not loaded", http.StatusInternalServerError)
			},
			want: ErrUnavailable,
		},
		{
			name: "bad body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>"))
			},
			want: ErrUnavailable,
		},
		{
			name: "empty response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"response":""}`))
			},
			want: ErrEmptyResponse,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			timeout: 20 * time.Millisecond,
			want:    ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewOllamaBackend(srv.URL, srv.Client()).Generate(context.Background(), Request{Prompt: "p", Timeout: tt.timeout})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOllamaBackend_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOllamaBackend(url, nil).Generate(context.Background(), Request{Prompt: "p", Timeout: time.Second})
	assert.ErrorIs(t, err, ErrConnection)
}
