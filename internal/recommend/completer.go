package recommend

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// Kind selects the recommendation contract a synthesis must satisfy
type Kind string

const (
	KindActivity  Kind = "activity"
	KindJob       Kind = "job"
	KindPortfolio Kind = "portfolio"
)

// Request is one structured completion request. Kind travels with the
// prompts so any Completer implementation can honor the per-kind response
// contract.
type Request struct {
	Kind   Kind
	System string
	Prompt string
}

// Completer produces a structured completion; both the live client and the
// test-mode mock implement it, so downstream code is agnostic to mode.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// OpenAIConfig holds generative service configuration
type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// OpenAIClient implements Completer against the OpenAI chat completion API
type OpenAIClient struct {
	client *openai.Client
	config OpenAIConfig
	logger *slog.Logger
}

// NewOpenAIClient creates the live Completer
func NewOpenAIClient(config OpenAIConfig, logger *slog.Logger) *OpenAIClient {
	if config.Model == "" {
		config.Model = openai.GPT4
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 2000
	}

	return &OpenAIClient{
		client: openai.NewClient(config.APIKey),
		config: config,
		logger: logger,
	}
}

// Complete sends the request as a system+user chat completion
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	})
	if err != nil {
		c.logger.Error("Chat completion failed",
			slog.String("model", c.config.Model),
			slog.String("kind", string(req.Kind)),
			slog.Any("error", err),
		)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
