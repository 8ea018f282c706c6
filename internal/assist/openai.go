package assist

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

var ErrDisabled = errors.New("assistant disabled")

const defaultModel = "gpt-4o-mini"

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAICompleter talks to the OpenAI chat completions API or anything
// compatible with it.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

func NewOpenAICompleter(cfg OpenAIConfig) *OpenAICompleter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &OpenAICompleter{client: openai.NewClientWithConfig(clientCfg), model: model}
}

func (o *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// NoopCompleter is used when no API key is configured. Every call fails, so
// the bridge returns no suggestions and the fixed failure summary.
type NoopCompleter struct{}

func (NoopCompleter) Complete(context.Context, string, string) (string, error) {
	return "", ErrDisabled
}
