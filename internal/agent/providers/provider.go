// Package providers implements the LLM provider adapters for the Nexar
// engine. Each adapter exposes the same narrow chat surface; the engine
// never speaks HTTP to a vendor directly.
package providers

import (
	"context"

	"github.com/nexar-labs/nexar/pkg/models"
)

// ResponseFormat constrains the shape of the model output.
type ResponseFormat string

const (
	FormatText       ResponseFormat = "text"
	FormatJSONObject ResponseFormat = "json_object"
)

// ChatOptions tunes one chat call.
type ChatOptions struct {
	Temperature          float32
	MaxTokens            int
	ResponseFormat       ResponseFormat
	Stop                 []string
	SystemPromptOverride string
}

// ChatResult is the uniform result of one chat call. PromptMessages is
// the exact compiled prompt the adapter sent, so the UI can display it.
type ChatResult struct {
	Content        string
	Usage          models.TokenUsage
	PromptMessages []models.ChatMessage
	ElapsedMS      int64
	Provider       string
	Model          string
}

// Provider is one configured LLM vendor endpoint.
type Provider interface {
	// ID returns the routing identifier (openai, anthropic, custom).
	ID() string

	// Name returns the display name for /api/ai/providers.
	Name() string

	// Model returns the configured model identifier.
	Model() string

	// Chat sends the messages and returns the completion. The messages
	// slice is never mutated; adapters compile their own copy.
	Chat(ctx context.Context, messages []models.ChatMessage, opts ChatOptions) (*ChatResult, error)
}

// compilePrompt returns a fresh prompt slice: the optional system
// override first, then the caller's messages unchanged.
func compilePrompt(messages []models.ChatMessage, systemOverride string) []models.ChatMessage {
	prompt := make([]models.ChatMessage, 0, len(messages)+1)
	if systemOverride != "" {
		prompt = append(prompt, models.ChatMessage{Role: models.RoleSystem, Content: systemOverride})
	}
	prompt = append(prompt, messages...)
	return prompt
}
