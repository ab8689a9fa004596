// Package llm talks to the local language model that classifies practice
// mail. Only non-streaming single-prompt generation is needed here.
package llm

import (
	"context"
	"time"
)

// GenerateResult is one completed generation.
type GenerateResult struct {
	// Response is the raw model output, usually a JSON document.
	Response string
	// Model is the model that actually answered.
	Model string
	// Duration is the wall-clock time of the call.
	Duration time.Duration
	// PromptTokens and ResponseTokens are the token counts reported by the
	// backend, zero when the backend does not report them.
	PromptTokens   int
	ResponseTokens int
}

// Client generates a completion for one prompt. Implementations must honor
// ctx cancellation and return classified errors for timeouts and unreachable
// backends.
type Client interface {
	Generate(ctx context.Context, prompt, model string) (*GenerateResult, error)
}
