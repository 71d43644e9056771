// Package provider abstracts the chat completion backends that generate role
// output. Implementations translate transcripts and tool definitions into a
// specific API and return text, tool calls, or both.
package provider

import (
	"context"
	"fmt"

	"github.com/miradorstack/mirador-investigator/internal/config"
	"github.com/miradorstack/mirador-investigator/internal/models"
)

// Provider is the interface for completion backends.
// Implementations must be safe for concurrent use.
type Provider interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	Name() string
}

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// CompletionRequest is the input to a completion call.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	Tools        []models.ToolDefinition
	Model        string
	MaxTokens    int
}

// Message is a single chat message.
type Message struct {
	Role        string
	Content     string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
}

// CompletionResponse is the output of a completion call.
type CompletionResponse struct {
	Content    string
	ToolCalls  []models.ToolCall
	Usage      UsageInfo
	StopReason string
}

// HasToolCalls returns true if the response contains tool call requests.
func (r *CompletionResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// UsageInfo reports token consumption for a single completion call.
type UsageInfo struct {
	InputTokens  int64
	OutputTokens int64
}

// TotalTokens returns input + output.
func (u UsageInfo) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// New creates a provider for the configured endpoint.
func New(cfg config.ProviderConfig) (Provider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("provider endpoint is required")
	}
	return NewOpenAIProvider(cfg, nil), nil
}
