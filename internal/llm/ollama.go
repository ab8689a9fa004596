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
	"time"

	triagerr "github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/errors"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/logging"
)

const (
	defaultOllamaURL = "http://localhost:11434"
	defaultModel     = "qwen2.5:14b-instruct"
	// Local models can be slow on first load.
	defaultTimeout = 120 * time.Second
)

// OllamaConfig configures the Ollama backend.
type OllamaConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float64       `mapstructure:"temperature"`
	NumPredict  int           `mapstructure:"num_predict"`
}

// OllamaClient implements Client against the Ollama generate API.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	options    ollamaOptions
	logger     *logging.Logger
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Format  string        `json:"format,omitempty"`
	Options ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
}

// NewOllamaClient builds a client. Empty config fields fall back to the local
// defaults. No connection check happens here; the first Generate surfaces an
// unreachable backend as a service error.
func NewOllamaClient(config OllamaConfig, logger *logging.Logger) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = defaultOllamaURL
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	return &OllamaClient{
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		model:      config.Model,
		options: ollamaOptions{
			Temperature: config.Temperature,
			NumPredict:  config.NumPredict,
		},
		logger: logging.OrNop(logger),
	}
}

// Generate runs one non-streaming completion. Format is pinned to json so the
// backend constrains output to a single JSON document.
func (c *OllamaClient) Generate(ctx context.Context, prompt, model string) (*GenerateResult, error) {
	if model == "" {
		model = c.model
	}

	payload, err := json.Marshal(ollamaRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  false,
		Format:  "json",
		Options: c.options,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return nil, triagerr.NewTimeoutError("ollama generate", err)
		}
		return nil, triagerr.NewServiceUnavailableError("ollama", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("closing ollama response body", "error", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, triagerr.NewServiceUnavailableError("ollama",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, triagerr.NewServiceUnavailableError("ollama", fmt.Errorf("decode response: %w", err))
	}

	duration := time.Since(start)
	c.logger.Debug("ollama generate done",
		"model", out.Model,
		"duration", duration,
		"prompt_tokens", out.PromptEvalCount,
		"response_tokens", out.EvalCount,
	)
	return &GenerateResult{
		Response:       out.Response,
		Model:          out.Model,
		Duration:       duration,
		PromptTokens:   out.PromptEvalCount,
		ResponseTokens: out.EvalCount,
	}, nil
}

// Models lists the tags known to the backend. Used by the CLI for a startup
// sanity check.
func (c *OllamaClient) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, triagerr.NewServiceUnavailableError("ollama", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("closing ollama response body", "error", cerr)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, triagerr.NewServiceUnavailableError("ollama", fmt.Errorf("status %d", resp.StatusCode))
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}
	return names, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
