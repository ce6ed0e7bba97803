package providers

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nexar-labs/nexar/pkg/models"
)

// OpenAIProvider serves OpenAI and any OpenAI-compatible endpoint
// (the "custom" provider family is this adapter with a BaseURL).
type OpenAIProvider struct {
	client *openai.Client
	id     string
	name   string
	model  string
	retry  RetryPolicy
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	ID      string
	Name    string
	APIKey  string
	Model   string
	BaseURL string
	Retry   RetryPolicy
}

// NewOpenAIProvider creates an adapter for an OpenAI-compatible endpoint.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, NewProviderError(cfg.ID, KindAuth, "API key is required", nil)
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		id:     cfg.ID,
		name:   cfg.Name,
		model:  cfg.Model,
		retry:  cfg.Retry,
	}, nil
}

// ID returns the routing identifier.
func (p *OpenAIProvider) ID() string { return p.id }

// Name returns the display name.
func (p *OpenAIProvider) Name() string { return p.name }

// Model returns the configured model identifier.
func (p *OpenAIProvider) Model() string { return p.model }

// Chat sends a completion request, retrying transient failures.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []models.ChatMessage, opts ChatOptions) (*ChatResult, error) {
	prompt := compilePrompt(messages, opts.SystemPromptOverride)

	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toOpenAIMessages(prompt),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stop:        opts.Stop,
	}
	if opts.ResponseFormat == FormatJSONObject {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	var resp openai.ChatCompletionResponse
	err := p.retry.Do(ctx, func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, req)
		if callErr != nil {
			return p.classify(callErr)
		}
		if len(resp.Choices) == 0 {
			return NewProviderError(p.id, KindBadResponse, "no choices in response", nil).WithModel(p.model)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	content := resp.Choices[0].Message.Content
	return &ChatResult{
		Content:        content,
		Usage:          resolveUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, prompt, content),
		PromptMessages: prompt,
		ElapsedMS:      time.Since(start).Milliseconds(),
		Provider:       p.id,
		Model:          p.model,
	}, nil
}

func (p *OpenAIProvider) classify(err error) *ProviderError {
	status := 0
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.HTTPStatusCode
	}
	return ClassifyError(p.id, status, err).WithModel(p.model)
}

func toOpenAIMessages(messages []models.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := string(m.Role)
		switch m.Role {
		case models.RoleSystem, models.RoleUser, models.RoleAssistant:
		default:
			role = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}
	return out
}
