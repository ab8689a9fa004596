package llm

import (
	"context"
	"sync"
	"time"
)

// MockClient is a scripted Client for tests. Responses are served in order;
// after the script runs out the last entry repeats. A nil script yields an
// empty response.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

// NewMockClient scripts successful responses.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses}
}

// FailWith scripts an error for the call at the same index as the response.
func (m *MockClient) FailWith(errs ...error) *MockClient {
	m.errs = errs
	return m
}

func (m *MockClient) Generate(_ context.Context, prompt, model string) (*GenerateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.calls
	m.calls++
	m.prompts = append(m.prompts, prompt)

	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}

	response := ""
	if len(m.responses) > 0 {
		if idx >= len(m.responses) {
			idx = len(m.responses) - 1
		}
		response = m.responses[idx]
	}
	return &GenerateResult{
		Response: response,
		Model:    model,
		Duration: time.Millisecond,
	}, nil
}

// Calls reports how many times Generate ran.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns a copy of the prompts seen so far.
func (m *MockClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}
