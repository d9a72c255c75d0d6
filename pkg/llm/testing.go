package llm

import (
	"context"
	"sync"
)

// MockCall records one ChatComplete invocation made against MockProvider.
type MockCall struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// MockResponse scripts one ChatComplete result.
type MockResponse struct {
	Text string
	Err  error
}

// MockProvider is a scripted Provider for tests. Responses are consumed
// in order; when the script is exhausted the last response repeats. A
// RespondFunc, when set, takes precedence over the scripted responses.
type MockProvider struct {
	mu        sync.Mutex
	Responses []MockResponse
	Health    HealthStatus

	// RespondFunc, when non-nil, computes the response per call.
	RespondFunc func(call MockCall) (string, error)

	Calls []MockCall
	next  int
}

// NewMockProvider creates a healthy mock with the given scripted responses.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{
		Responses: responses,
		Health:    HealthStatus{Healthy: true, LoadedModel: "mock-model"},
	}
}

// ChatComplete implements Provider.
func (m *MockProvider) ChatComplete(_ context.Context, messages []Message, maxTokens int, temperature float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := MockCall{Messages: messages, MaxTokens: maxTokens, Temperature: temperature}
	m.Calls = append(m.Calls, call)

	if m.RespondFunc != nil {
		return m.RespondFunc(call)
	}
	if len(m.Responses) == 0 {
		return "", ErrEmptyResponse
	}

	idx := m.next
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.next++
	}
	resp := m.Responses[idx]
	return resp.Text, resp.Err
}

// CheckHealth implements Provider.
func (m *MockProvider) CheckHealth(context.Context, bool) HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Health
}

// CallCount returns how many ChatComplete calls were made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
