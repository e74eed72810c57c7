package provider

import (
	"context"
	"sync"

	atlaserrors "atlas/internal/errors"
)

// MockGenerator implements ports.Generator for testing. Responses are served
// in order; once exhausted the last one repeats.
type MockGenerator struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Prompts   []string
}

// Generate returns the next scripted response, recording the prompt.
func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", atlaserrors.NewProviderError(err, "generation canceled")
	}

	m.Prompts = append(m.Prompts, prompt)

	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", atlaserrors.NewProviderError(nil, "mock generator has no scripted responses")
	}

	call := len(m.Prompts) - 1
	if call >= len(m.Responses) {
		call = len(m.Responses) - 1
	}
	return m.Responses[call], nil
}

// CallCount returns how many prompts were issued.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}
