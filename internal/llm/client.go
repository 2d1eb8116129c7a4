// Package llm wraps the language model providers used for classification and
// agenda drafting.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoProvider is returned when no provider credentials are configured.
var ErrNoProvider = errors.New("no LLM provider configured")

// ChatMessage is one turn sent to a model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest represents a completion request. System is folded into
// the conversation by providers that do not take it separately.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
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

// Credentials selects a provider. The first non-empty key wins, Anthropic
// before OpenAI.
type Credentials struct {
	AnthropicKey string
	OpenAIKey    string
	Model        string
}

// NewClient creates a client for the configured provider.
func NewClient(creds Credentials) (Client, error) {
	switch {
	case creds.AnthropicKey != "":
		return NewAnthropicClient(creds.AnthropicKey, creds.Model)
	case creds.OpenAIKey != "":
		return NewOpenAIClient(creds.OpenAIKey, creds.Model)
	default:
		return nil, ErrNoProvider
	}
}

// UserPrompt builds a single-turn request.
func UserPrompt(system, prompt string, maxTokens int) *CompletionRequest {
	return &CompletionRequest{
		System:    system,
		Messages:  []ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	}
}

func withSystem(req *CompletionRequest) []ChatMessage {
	if req.System == "" || len(req.Messages) == 0 {
		return req.Messages
	}
	out := append([]ChatMessage(nil), req.Messages...)
	out[0].Content = fmt.Sprintf("%s\n\n%s", req.System, out[0].Content)
	return out
}
