// Package openai provides a chat completion provider backed by the OpenAI API
// or any OpenAI-compatible endpoint (Groq, OpenRouter, local servers).
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/rehearse/pkg/provider/llm"
)

// Provider implements llm.Provider using the OpenAI chat completions API.
type Provider struct {
	client oai.Client
}

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new chat Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries are the fallback executor's job: one attempt per model.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{client: oai.NewClient(reqOpts...)}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	choice := resp.Choices[0]
	return &llm.CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// buildParams converts a CompletionRequest into OpenAI SDK params.
func buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	if req.Model == "" {
		return oai.ChatCompletionNewParams{}, fmt.Errorf("model must not be empty")
	}

	var messages []oai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return oai.ChatCompletionNewParams{}, fmt.Errorf("request has neither system prompt nor messages")
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params, nil
}

// convertMessage converts an llm.Message to an OpenAI SDK message param.
func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case "system":
		return oai.SystemMessage(m.Content), nil
	case "user":
		return oai.UserMessage(m.Content), nil
	case "assistant":
		return oai.AssistantMessage(m.Content), nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
	}
}
