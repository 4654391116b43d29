package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a deterministic Client used when config.TestMode is
// set (§6.1). It allows a custom GenerateFunc for tests that need
// specific responses, and otherwise returns a fixed, recognizable
// string so callers can assert on it without a live provider.
type MockClient struct {
	// GenerateFunc is called when Generate is invoked. If nil, a fixed
	// mock string is returned.
	GenerateFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

	mu        sync.Mutex
	callCount int
	lastPrompt string
}

// NewMockClient returns a MockClient with default echo-style behavior.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Generate implements Client.
func (m *MockClient) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.lastPrompt = prompt
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, maxTokens)
	}
	return "mock response: " + fmt.Sprintf("%d bytes of prompt received", len(prompt)), nil
}

// CallCount reports how many times Generate has been invoked.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastPrompt returns the most recent prompt passed to Generate.
func (m *MockClient) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}
