package providers

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nexar-labs/nexar/pkg/models"
)

// AnthropicProvider adapts Anthropic's Messages API to the uniform chat
// surface. System messages are extracted from the prompt and carried in
// the dedicated system parameter, as the API requires.
type AnthropicProvider struct {
	client anthropic.Client
	id     string
	name   string
	model  string
	retry  RetryPolicy
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	ID      string
	Name    string
	APIKey  string
	Model   string
	BaseURL string
	Retry   RetryPolicy
}

// NewAnthropicProvider creates an Anthropic adapter.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, NewProviderError(cfg.ID, KindAuth, "API key is required", nil)
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(options...),
		id:     cfg.ID,
		name:   cfg.Name,
		model:  cfg.Model,
		retry:  cfg.Retry,
	}, nil
}

// ID returns the routing identifier.
func (p *AnthropicProvider) ID() string { return p.id }

// Name returns the display name.
func (p *AnthropicProvider) Name() string { return p.name }

// Model returns the configured model identifier.
func (p *AnthropicProvider) Model() string { return p.model }

// Chat sends a messages request, retrying transient failures.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []models.ChatMessage, opts ChatOptions) (*ChatResult, error) {
	prompt := compilePrompt(messages, opts.SystemPromptOverride)

	params, err := p.buildParams(prompt, opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var msg *anthropic.Message
	err = p.retry.Do(ctx, func() error {
		var callErr error
		msg, callErr = p.client.Messages.New(ctx, params)
		if callErr != nil {
			return ClassifyError(p.id, 0, callErr).WithModel(p.model)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	content := text.String()
	if content == "" {
		return nil, NewProviderError(p.id, KindBadResponse, "empty completion", nil).WithModel(p.model)
	}

	return &ChatResult{
		Content:        content,
		Usage:          resolveUsage(int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens), prompt, content),
		PromptMessages: prompt,
		ElapsedMS:      time.Since(start).Milliseconds(),
		Provider:       p.id,
		Model:          p.model,
	}, nil
}

func (p *AnthropicProvider) buildParams(prompt []models.ChatMessage, opts ChatOptions) (anthropic.MessageNewParams, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	var system []anthropic.TextBlockParam
	var converted []anthropic.MessageParam
	for _, m := range prompt {
		switch m.Role {
		case models.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Type: "text", Text: m.Content})
		case models.RoleAssistant:
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(converted) == 0 {
		return anthropic.MessageNewParams{}, NewProviderError(p.id, KindBadResponse, "messages are required", nil)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		Messages:  converted,
		MaxTokens: int64(maxTokens),
	}
	if len(system) > 0 {
		params.System = system
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(opts.Temperature))
	}
	if len(opts.Stop) > 0 {
		params.StopSequences = opts.Stop
	}
	return params, nil
}
