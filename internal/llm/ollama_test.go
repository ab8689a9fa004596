package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	triagerr "github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/errors"
)

func TestGenerateSendsJSONFormatRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])
		assert.Equal(t, "json", req["format"])
		assert.Equal(t, false, req["stream"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":             "test-model",
			"response":          `{"ok":true}`,
			"done":              true,
			"prompt_eval_count": 42,
			"eval_count":        7,
		})
	}))
	defer server.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: server.URL}, nil)
	got, err := client.Generate(context.Background(), "classify this", "test-model")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, got.Response)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 42, got.PromptTokens)
	assert.Equal(t, 7, got.ResponseTokens)
	assert.Positive(t, got.Duration)
}

func TestGenerateDefaultsModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "custom:7b", req["model"])
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "{}", "done": true})
	}))
	defer server.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: server.URL, Model: "custom:7b"}, nil)
	_, err := client.Generate(context.Background(), "p", "")
	require.NoError(t, err)
}

func TestGenerateUnreachableBackend(t *testing.T) {
	client := NewOllamaClient(OllamaConfig{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}, nil)
	_, err := client.Generate(context.Background(), "p", "")
	require.Error(t, err)
	assert.True(t, triagerr.IsServiceUnavailable(err))
}

func TestGenerateHTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: server.URL}, nil)
	_, err := client.Generate(context.Background(), "p", "")
	require.Error(t, err)
	assert.True(t, triagerr.IsServiceUnavailable(err))
	assert.Contains(t, err.Error(), "404")
}

func TestGenerateContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client hanging up;
		// otherwise the handler outlives the test and Close blocks.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewOllamaClient(OllamaConfig{BaseURL: server.URL}, nil)
	_, err := client.Generate(ctx, "p", "")
	require.Error(t, err)
	assert.True(t, triagerr.IsTimeout(err))
}

func TestBaseURLTrailingSlashTrimmed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "qwen2.5:14b-instruct"}, {"name": "llama3.2"}},
		})
	}))
	defer server.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: server.URL + "/"}, nil)
	models, err := client.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"qwen2.5:14b-instruct", "llama3.2"}, models)
}

func TestMockClientScript(t *testing.T) {
	mock := NewMockClient("first", "second").FailWith(nil, nil, nil)

	a, err := mock.Generate(context.Background(), "p1", "m")
	require.NoError(t, err)
	b, err := mock.Generate(context.Background(), "p2", "m")
	require.NoError(t, err)
	c, err := mock.Generate(context.Background(), "p3", "m")
	require.NoError(t, err)

	assert.Equal(t, "first", a.Response)
	assert.Equal(t, "second", b.Response)
	assert.Equal(t, "second", c.Response, "script repeats its last entry")
	assert.Equal(t, 3, mock.Calls())
	assert.Equal(t, []string{"p1", "p2", "p3"}, mock.Prompts())
}
