package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	openAIDefaultModel = "gpt-4o-mini"
	geminiDefaultModel = "gemini-2.0-flash"
	geminiAPIBase      = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

// OpenAI completes prompts with an OpenAI-compatible chat completions API.
// Gemini is served through Google's OpenAI-compatible endpoint.
type OpenAI struct {
	name      string
	client    openai.Client
	model     string
	maxTokens int64
	logger    *slog.Logger
}

type OpenAIConfig struct {
	// Name is "openai" or "gemini"; it picks the default base URL and model.
	Name       string
	APIKey     string
	APIBase    string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.Name == "gemini" {
		if cfg.APIBase == "" {
			cfg.APIBase = geminiAPIBase
		}
		if cfg.Model == "" {
			cfg.Model = geminiDefaultModel
		}
	}
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIBase))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAI{
		name:      cfg.Name,
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
		logger:    cfg.Logger,
	}
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxTokens: openai.Int(o.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("%s API call: %w", o.name, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New(o.name + ": empty reply")
	}

	o.logger.Debug("chat completion reply",
		"provider", o.name,
		"model", o.model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return resp.Choices[0].Message.Content, nil
}
