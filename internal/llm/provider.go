// Package llm routes single-turn completions to a hosted or local model,
// retrying and falling back between providers. Translation is its only
// consumer, so a request is one system instruction plus one user prompt.
package llm

import (
	"context"
	"errors"
	"time"
)

// ErrTruncated means the model stopped at the token budget, so the reply is
// incomplete. Retrying with the same budget does not help.
var ErrTruncated = errors.New("completion truncated at token budget")

// Provider is one completion backend (OpenAI, Anthropic, Ollama).
type Provider interface {
	Name() string
	// DefaultModel is used when neither the request nor the config names one.
	DefaultModel() string
	Complete(ctx context.Context, req Completion) (*Reply, error)
}

// Gateway picks the provider for a completion and handles retry and fallback.
type Gateway interface {
	Complete(ctx context.Context, req Completion) (*Reply, error)
}

type Completion struct {
	Provider    string // empty uses the gateway default
	Model       string // empty uses the provider's configured model
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}

func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

type Reply struct {
	Provider string
	Model    string
	Text     string
	Usage    Usage
	CostUSD  float64
	Latency  time.Duration
}
