// Package llm provides completion clients for the assistant.
package llm

import (
	"context"
	"fmt"
)

// Role values accepted in ChatMessage.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Options configures NewClient.
type Options struct {
	Provider Provider
	APIKey   string
	// BaseURL points the OpenAI client at a compatible API such as Groq.
	BaseURL string
	// Model is used when a request does not name one.
	Model string
}

// NewClient creates a new LLM client based on provider.
func NewClient(opts Options) (Client, error) {
	switch opts.Provider {
	case ProviderAnthropic:
		return NewAnthropicClient(opts.APIKey, opts.Model)
	case ProviderOpenAI, "":
		return NewOpenAIClient(opts.APIKey, opts.BaseURL, opts.Model)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", opts.Provider)
	}
}
