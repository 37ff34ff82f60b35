// Package testutil provides shared test helpers and mocks for chatbot tests.
package testutil

import (
	"context"
	"sync"

	"github.com/DawoodTahir/MCP-Chatbot/internal/llm"
)

// MockProvider implements llm.Provider for tests without live API calls.
// When Content is empty, Generate returns "mock response from " + ProviderName;
// otherwise uses Content. Set Err to simulate LLM errors.
type MockProvider struct {
	mu               sync.Mutex
	ProviderName     string // provider identifier, e.g. "openai"
	Content          string // canned response; empty = "mock response from " + ProviderName
	Err              error  // if set, Generate returns this error
	CallCount        int
	ReceivedMessages [][]llm.Message
}

// Name returns the provider identifier (implements llm.Provider).
func (m *MockProvider) Name() string { return m.ProviderName }

// Generate returns a canned response or the configured error, recording the
// request for assertions.
func (m *MockProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.CallCount++
	msgCopy := make([]llm.Message, len(req.Messages))
	copy(msgCopy, req.Messages)
	m.ReceivedMessages = append(m.ReceivedMessages, msgCopy)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	content := m.Content
	if content == "" {
		content = "mock response from " + m.ProviderName
	}
	return &llm.Response{
		Content:      content,
		FinishReason: "stop",
		InputTokens:  10,
		OutputTokens: 20,
		Model:        req.Model,
	}, nil
}

// LastMessages returns the messages of the most recent Generate call.
func (m *MockProvider) LastMessages() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ReceivedMessages) == 0 {
		return nil
	}
	return m.ReceivedMessages[len(m.ReceivedMessages)-1]
}
