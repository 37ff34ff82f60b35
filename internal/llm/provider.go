// Package llm defines the provider abstraction used by the agent to compose
// answers, with OpenAI and Ollama backends.
package llm

import (
	"context"
	"errors"
	"time"
)

// TimeoutLLMCall bounds every provider call.
const TimeoutLLMCall = 60 * time.Second

// Domain errors for the LLM package.
var (
	ErrNoChoices           = errors.New("provider returned no choices")
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrEmptyResponse       = errors.New("provider returned empty content")
	ErrProviderUnavailable = errors.New("provider not available")
)

// Provider is the interface all LLM providers must implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "ollama").
	Name() string
	// Generate sends a completion request to the LLM and returns the response.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request represents an LLM generation request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	JSONMode    bool // force a JSON object response where the backend supports it
}

// Message represents a chat message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Response represents an LLM generation response.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
}
