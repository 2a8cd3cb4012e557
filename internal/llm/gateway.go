package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/accentcoach/internal/config"
)

type gateway struct {
	providers        map[string]Provider
	defaultProvider  string
	defaultModel     string
	fallbackProvider string
	maxRetries       int
	backoff          func(attempt int) time.Duration
}

// NewGateway registers every provider that has credentials configured.
func NewGateway(cfg config.LLMConfig) Gateway {
	providers := make(map[string]Provider)
	switch {
	case cfg.OpenAIBaseURL != "":
		providers["openai"] = NewOpenAIProviderWithBaseURL(cfg.OpenAIKey, cfg.OpenAIBaseURL)
	case cfg.OpenAIKey != "":
		providers["openai"] = NewOpenAIProvider(cfg.OpenAIKey)
	}
	if cfg.AnthropicKey != "" {
		providers["anthropic"] = NewAnthropicProvider(cfg.AnthropicKey)
	}
	if cfg.OllamaURL != "" {
		providers["ollama"] = NewOllamaProvider(cfg.OllamaURL)
	}
	return NewGatewayWithProviders(cfg, providers)
}

// NewGatewayWithProviders builds a gateway over an explicit provider set,
// keyed by the names requests refer to.
func NewGatewayWithProviders(cfg config.LLMConfig, providers map[string]Provider) Gateway {
	return &gateway{
		providers:        providers,
		defaultProvider:  cfg.DefaultProvider,
		defaultModel:     cfg.DefaultModel,
		fallbackProvider: cfg.FallbackProvider,
		maxRetries:       cfg.MaxRetries,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * 500 * time.Millisecond
		},
	}
}

// Complete sends req to its provider, retrying transient failures, and then
// to the fallback provider. Truncation and cancellation end the call at once.
func (g *gateway) Complete(ctx context.Context, req Completion) (*Reply, error) {
	name := req.Provider
	if name == "" {
		name = g.defaultProvider
	}

	reply, err := g.completeWithRetry(ctx, name, req)
	if err == nil || !g.shouldFallBack(ctx, name, err) {
		return reply, err
	}

	slog.Warn("primary provider failed, trying fallback",
		"primary", name,
		"fallback", g.fallbackProvider,
		"error", err,
	)
	// The requested model belongs to the primary provider.
	req.Model = ""
	return g.completeWithRetry(ctx, g.fallbackProvider, req)
}

func (g *gateway) shouldFallBack(ctx context.Context, primary string, err error) bool {
	return ctx.Err() == nil &&
		!errors.Is(err, ErrTruncated) &&
		g.fallbackProvider != "" &&
		g.fallbackProvider != primary
}

func (g *gateway) completeWithRetry(ctx context.Context, name string, req Completion) (*Reply, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	if req.Model == "" {
		req.Model = g.modelFor(p)
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.backoff(attempt)):
			}
			slog.Debug("retrying completion", "provider", name, "attempt", attempt, "error", lastErr)
		}

		reply, err := p.Complete(ctx, req)
		if err == nil {
			return reply, nil
		}
		if errors.Is(err, ErrTruncated) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("all retries exhausted for %s: %w", name, lastErr)
}

// modelFor uses the configured model for the default provider and the
// provider's own default otherwise.
func (g *gateway) modelFor(p Provider) string {
	if p.Name() == g.defaultProvider && g.defaultModel != "" {
		return g.defaultModel
	}
	return p.DefaultModel()
}
