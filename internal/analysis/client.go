// Package analysis proxies resume analysis and job matching to a chat
// completion model.
//
// The package owns the request rules (required fields, minimum lengths,
// prompt placeholders) and the shape check on the model's reply. The model
// itself sits behind the Client interface, built once in cmd/server and
// injected; nothing here reads the environment.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Provider names accepted by NewOpenAIClient.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"

	openRouterBaseURL = "https://openrouter.ai/api/v1"
	openRouterTitle   = "ATS Resume Optimizer"

	defaultOpenAIModel     = "gpt-4o"
	defaultOpenRouterModel = "google/gemini-1.5-flash"

	temperature = 0.7
	maxTokens   = 2000
)

// ErrEmptyCompletion is returned when the model answers with no choices or
// an empty message.
var ErrEmptyCompletion = errors.New("analysis: empty completion")

// Client sends one system + user prompt pair to a chat model and returns
// the text of the first choice.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	Provider string // ProviderOpenAI or ProviderOpenRouter
	APIKey   string
	Model    string // empty selects the provider default

	// Referer is sent as HTTP-Referer to OpenRouter, which uses it to
	// attribute traffic. Usually the frontend URL.
	Referer string

	// BaseURL overrides the provider endpoint. Tests point it at httptest.
	BaseURL string
}

// OpenAIClient implements Client with the official OpenAI SDK. OpenRouter
// speaks the same API, so it is the same client with a different base URL
// and two attribution headers.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient validates cfg and builds the SDK client.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("analysis: %s API key is required", cfg.Provider)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	model := cfg.Model

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		if model == "" {
			model = defaultOpenAIModel
		}
	case ProviderOpenRouter:
		if model == "" {
			model = defaultOpenRouterModel
		}
		opts = append(opts,
			option.WithBaseURL(openRouterBaseURL),
			option.WithHeader("X-Title", openRouterTitle),
		)
		if cfg.Referer != "" {
			opts = append(opts, option.WithHeader("HTTP-Referer", cfg.Referer))
		}
	default:
		return nil, fmt.Errorf("analysis: unknown AI provider %q", cfg.Provider)
	}

	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{client: openai.NewClient(opts...), model: model}, nil
}

// Model returns the model name requests are sent to.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("analysis: chat completion (%s): %w", c.model, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
