package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nikhilbhutani/accentcoach/internal/config"
)

type fakeProvider struct {
	name     string
	model    string
	failures int
	err      error
	calls    int
	lastReq  Completion
}

func (f *fakeProvider) Name() string         { return f.name }
func (f *fakeProvider) DefaultModel() string { return f.model }

func (f *fakeProvider) Complete(_ context.Context, req Completion) (*Reply, error) {
	f.calls++
	f.lastReq = req
	if f.calls <= f.failures {
		if f.err != nil {
			return nil, f.err
		}
		return nil, errors.New("upstream unavailable")
	}
	return &Reply{Provider: f.name, Model: req.Model, Text: "ok from " + f.name}, nil
}

func newTestGateway(cfg config.LLMConfig, providers ...*fakeProvider) *gateway {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.name] = p
	}
	g := NewGatewayWithProviders(cfg, m).(*gateway)
	g.backoff = func(int) time.Duration { return 0 }
	return g
}

func TestCompleteRetriesThenSucceeds(t *testing.T) {
	primary := &fakeProvider{name: "openai", model: "gpt-4o", failures: 2}
	g := newTestGateway(config.LLMConfig{DefaultProvider: "openai", DefaultModel: "gpt-4o-mini", MaxRetries: 2}, primary)

	reply, err := g.Complete(context.Background(), Completion{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if primary.calls != 3 {
		t.Fatalf("calls = %d, want 3", primary.calls)
	}
	if reply.Model != "gpt-4o-mini" {
		t.Fatalf("model = %q, want the configured default", reply.Model)
	}
}

func TestCompleteFallsBack(t *testing.T) {
	primary := &fakeProvider{name: "openai", failures: 10}
	fallback := &fakeProvider{name: "anthropic", model: "claude-3-5-haiku-latest"}
	g := newTestGateway(config.LLMConfig{
		DefaultProvider:  "openai",
		DefaultModel:     "gpt-4o-mini",
		FallbackProvider: "anthropic",
		MaxRetries:       1,
	}, primary, fallback)

	reply, err := g.Complete(context.Background(), Completion{Model: "gpt-4o", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply.Provider != "anthropic" {
		t.Fatalf("provider = %q, want anthropic", reply.Provider)
	}
	if fallback.lastReq.Model != "claude-3-5-haiku-latest" {
		t.Fatalf("fallback model = %q", fallback.lastReq.Model)
	}
	if primary.calls != 2 {
		t.Fatalf("primary calls = %d, want 2", primary.calls)
	}
}

func TestCompleteTruncationIsFinal(t *testing.T) {
	primary := &fakeProvider{name: "openai", failures: 10, err: fmt.Errorf("openai gpt-4o-mini: %w", ErrTruncated)}
	fallback := &fakeProvider{name: "ollama"}
	g := newTestGateway(config.LLMConfig{DefaultProvider: "openai", FallbackProvider: "ollama", MaxRetries: 3}, primary, fallback)

	_, err := g.Complete(context.Background(), Completion{Prompt: "hi"})
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if primary.calls != 1 || fallback.calls != 0 {
		t.Fatalf("calls primary=%d fallback=%d, want 1 and 0", primary.calls, fallback.calls)
	}
}

func TestCompleteUnknownProvider(t *testing.T) {
	g := newTestGateway(config.LLMConfig{DefaultProvider: "openai"})
	_, err := g.Complete(context.Background(), Completion{})
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("expected not configured error, got %v", err)
	}
}

func TestCompleteStopsOnCanceledContext(t *testing.T) {
	primary := &fakeProvider{name: "openai", failures: 10}
	fallback := &fakeProvider{name: "ollama"}
	g := newTestGateway(config.LLMConfig{DefaultProvider: "openai", FallbackProvider: "ollama", MaxRetries: 3}, primary, fallback)
	g.backoff = func(int) time.Duration { return time.Hour }

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	if _, err := g.Complete(ctx, Completion{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if fallback.calls != 0 {
		t.Fatal("fallback should not run after cancellation")
	}
}

func TestOpenAIProviderComplete(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-4o-mini-2024-07-18",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Hola amigo"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":1000,"completion_tokens":1000,"total_tokens":2000}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProviderWithBaseURL("test-key", srv.URL+"/v1")
	reply, err := p.Complete(context.Background(), Completion{Model: "gpt-4o-mini", System: "translate", Prompt: "hello friend", MaxTokens: 80})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply.Text != "Hola amigo" || reply.Usage.Total() != 2000 {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if math.Abs(reply.CostUSD-0.00075) > 1e-12 {
		t.Fatalf("cost = %v, want dated model priced as gpt-4o-mini", reply.CostUSD)
	}
	if got.MaxTokens != 80 || len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hello friend" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestOpenAIProviderTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c2","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Hola ami"},"finish_reason":"length"}]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIProviderWithBaseURL("k", srv.URL+"/v1").Complete(context.Background(), Completion{Model: "gpt-4o-mini", Prompt: "x"})
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestAnthropicProviderComplete(t *testing.T) {
	var got struct {
		MaxTokens int `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-20241022",
			"content":[{"type":"text","text":"Bonjour"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":12,"output_tokens":3}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	reply, err := p.Complete(context.Background(), Completion{Model: "claude-3-5-haiku-latest", System: "translate", Prompt: "hello"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply.Text != "Bonjour" || reply.Usage.Total() != 15 || reply.CostUSD <= 0 {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if got.MaxTokens != anthropicMaxTokens || len(got.System) != 1 || got.System[0].Text != "translate" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestOllamaProviderComplete(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"Bonjour"},"done":true,"done_reason":"stop","prompt_eval_count":12,"eval_count":3}`))
	}))
	defer srv.Close()

	reply, err := NewOllamaProvider(srv.URL+"/").Complete(context.Background(), Completion{Model: "llama3", System: "translate", Prompt: "hello", MaxTokens: 40})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply.Text != "Bonjour" || reply.Usage.Total() != 15 || reply.CostUSD != 0 {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if got.Stream || len(got.Messages) != 2 || got.Options["num_predict"] != float64(40) {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestOllamaProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"http error", http.StatusNotFound, "model not found", func(err error) bool { return strings.Contains(err.Error(), "404") }},
		{"truncated", http.StatusOK, `{"message":{"content":"Bon"},"done_reason":"length"}`, func(err error) bool { return errors.Is(err, ErrTruncated) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOllamaProvider(srv.URL).Complete(context.Background(), Completion{Model: "llama3"})
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		model string
		want  float64
	}{
		{"gpt-4o-mini", 0.00075},
		{"gpt-4o-2024-08-06", 0.0125},
		{"claude-3-5-haiku-20241022", 0.0048},
		{"llama3", 0},
	}
	for _, tt := range tests {
		if got := EstimateCost(tt.model, Usage{InputTokens: 1000, OutputTokens: 1000}); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("EstimateCost(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}
