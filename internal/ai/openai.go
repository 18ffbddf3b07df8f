package ai

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient is the OpenAI completion client.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	return &OpenAIClient{client: openai.NewClient(apiKey)}, nil
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Chat implements Client.
func (c *OpenAIClient) Chat(ctx context.Context, messages []ChatMessage, params Params) (string, error) {
	model := params.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	maxTokens := params.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    chatMessages,
		MaxTokens:   maxTokens,
		Temperature: float32(params.Temperature),
	})
	if err != nil {
		return "", &Error{Provider: c.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Provider: c.Name(), Err: errors.New("empty completion")}
	}
	return resp.Choices[0].Message.Content, nil
}
