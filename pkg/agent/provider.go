package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/shreyanshjain05/sparkthon/pkg/conversation"
)

// Provider is an interface for LLM API providers
type Provider interface {
	// Infer makes one inference call
	Infer(ctx context.Context, request Request) (*Response, error)

	// Name returns the provider name
	Name() string
}

// Request contains the parameters for one inference call
type Request struct {
	Model        string
	Messages     []conversation.Message
	Tools        []ToolSpec
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// ToolSpec describes one tool advertised to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Response contains the inference result: text content plus zero or more
// tool call requests.
type Response struct {
	Content   string
	ToolCalls []conversation.ToolCall
	Usage     *TokenUsage
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// NewProvider creates a provider for the given name.
func NewProvider(provider, apiKey string) (Provider, error) {
	switch provider {
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// IsRetryableError checks if a provider error should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()

	// Network errors
	if strings.Contains(errMsg, "ECONNRESET") || strings.Contains(errMsg, "ETIMEDOUT") ||
		strings.Contains(errMsg, "connection reset") {
		return true
	}

	// Rate limits
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "rate limit") {
		return true
	}

	// Server errors
	if strings.Contains(errMsg, "500") || strings.Contains(errMsg, "502") ||
		strings.Contains(errMsg, "503") || strings.Contains(errMsg, "504") {
		return true
	}

	return false
}
