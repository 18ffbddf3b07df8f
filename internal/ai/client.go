// Package ai provides the AI collaborator interface and provider
// implementations. The pipeline treats completion as a black box:
// chat(messages, params) -> text, failing with a typed error the
// dispatcher can catch.
package ai

import (
	"context"
	"fmt"
	"time"
)

// Role constants for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of conversation context.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params configures a completion request.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Error is a typed AI collaborator failure.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ai provider %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client is the interface for AI completion providers.
type Client interface {
	// Chat sends the message history and returns the completion text.
	Chat(ctx context.Context, messages []ChatMessage, params Params) (string, error)

	// Name returns the provider name.
	Name() string
}

// NewClient creates a client for the named provider.
func NewClient(provider, apiKey string) (Client, error) {
	switch provider {
	case "openai":
		return NewOpenAIClient(apiKey)
	case "anthropic", "":
		return NewAnthropicClient(apiKey)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", provider)
	}
}
