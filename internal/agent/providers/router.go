package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nexar-labs/nexar/internal/config"
	"github.com/nexar-labs/nexar/internal/observability"
	"github.com/nexar-labs/nexar/pkg/models"
)

// Router holds the configured providers and dispatches chat calls by
// provider id, applying the adapter timeout and recording metrics.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider
	timeout   time.Duration
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewRouter builds the provider table from configuration. Providers that
// fail to construct are skipped with a warning; an empty table is legal
// (the /ai/providers listing is simply empty).
func NewRouter(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) *Router {
	r := &Router{
		providers: make(map[string]Provider),
		timeout:   cfg.Engine.ProviderTimeout,
		logger:    logger,
		metrics:   metrics,
	}
	for _, pc := range cfg.Providers {
		provider, err := buildProvider(pc)
		if err != nil {
			logger.Warn(context.Background(), "skipping provider", "provider", pc.ID, "error", err)
			continue
		}
		r.providers[provider.ID()] = provider
	}
	return r
}

func buildProvider(pc config.ProviderConfig) (Provider, error) {
	switch pc.Family {
	case config.FamilyAnthropic:
		return NewAnthropicProvider(AnthropicConfig{
			ID:      pc.ID,
			Name:    pc.Name,
			APIKey:  pc.APIKey,
			Model:   pc.Model,
			BaseURL: pc.BaseURL,
		})
	case config.FamilyOpenAI, config.FamilyCustom:
		return NewOpenAIProvider(OpenAIConfig{
			ID:      pc.ID,
			Name:    pc.Name,
			APIKey:  pc.APIKey,
			Model:   pc.Model,
			BaseURL: pc.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown provider family %q", pc.Family)
	}
}

// Register adds or replaces a provider. Used by tests to install fakes.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
}

// Get returns the provider with the given id.
func (r *Router) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// List returns the configured providers sorted by id.
func (r *Router) List() []models.ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ProviderInfo, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, models.ProviderInfo{ID: p.ID(), Name: p.Name(), Model: p.Model()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Chat routes a chat call to the named provider under the adapter
// timeout and records request metrics.
func (r *Router) Chat(ctx context.Context, providerID string, messages []models.ChatMessage, opts ChatOptions) (*ChatResult, error) {
	provider, ok := r.Get(providerID)
	if !ok {
		return nil, NewProviderError(providerID, KindBadResponse, "provider not configured", nil)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := provider.Chat(ctx, messages, opts)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordLLMRequest(providerID, provider.Model(), "error", elapsed, 0, 0)
			if pe, ok := IsProviderError(err); ok {
				r.metrics.RecordError("provider", string(pe.Kind))
			}
		}
		r.logger.Error(ctx, "provider call failed", "provider", providerID, "error", err)
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.RecordLLMRequest(providerID, result.Model, "success", elapsed, result.Usage.Input, result.Usage.Output)
	}
	r.logger.Debug(ctx, "provider call completed",
		"provider", providerID,
		"model", result.Model,
		"elapsed_ms", result.ElapsedMS,
		"tokens", result.Usage.Total,
	)
	return result, nil
}
