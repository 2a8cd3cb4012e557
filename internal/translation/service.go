// Package translation translates learner text from the language being learned
// into the learner's native language using the LLM gateway.
package translation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nikhilbhutani/accentcoach/internal/cache"
	"github.com/nikhilbhutani/accentcoach/internal/config"
	"github.com/nikhilbhutani/accentcoach/internal/llm"
	"github.com/nikhilbhutani/accentcoach/internal/prompt"
	"github.com/nikhilbhutani/accentcoach/pkg/tokenizer"
)

const (
	DefaultTargetLanguage = "en"

	NoNativeLanguageMessage = "No native language specified. Please select your native language first."
	SameLanguageMessage     = "No translation needed. You've selected the same language for native and learning. Go back to the language selection menu to choose a different native or learning language."
)

// ErrUnavailable wraps failures of the underlying translation provider.
var ErrUnavailable = errors.New("translation unavailable")

var translatePrompt = prompt.Template{
	System: "You are a translation engine. Translate the user's text from the language with code {{source}} " +
		"into the language with code {{target}}. Reply with the translation only, without quotes or commentary.",
	User: "{{text}}",
}

// Request is a translation request. TargetLanguage is the language being
// learned, which is also the language Text is written in.
type Request struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language"`
	NativeLanguage string `json:"native_language"`
}

// Result carries either a translation or, when no translation was attempted,
// a message for the learner.
type Result struct {
	TranslatedText string
	Message        string
	Cached         bool
}

type Service struct {
	gw       llm.Gateway
	store    cache.Store
	provider string
	model    string
	ttl      time.Duration
}

func NewService(gw llm.Gateway, store cache.Store, cfg config.TranslationConfig) *Service {
	return &Service{
		gw:       gw,
		store:    store,
		provider: cfg.Provider,
		model:    cfg.Model,
		ttl:      cfg.CacheTTL,
	}
}

func (s *Service) Translate(ctx context.Context, req Request) (*Result, error) {
	if req.Text == "" {
		slog.Warn("empty text provided for translation")
		return &Result{}, nil
	}

	target := strings.TrimSpace(req.TargetLanguage)
	if target == "" {
		target = DefaultTargetLanguage
	}
	native := strings.TrimSpace(req.NativeLanguage)
	if native == "" {
		return &Result{Message: NoNativeLanguageMessage}, nil
	}
	if strings.EqualFold(native, target) {
		return &Result{TranslatedText: SameLanguageMessage}, nil
	}

	key := cacheKey(target, native, req.Text)
	if s.store != nil {
		var cached string
		err := s.store.Get(ctx, key, &cached)
		switch {
		case err == nil:
			return &Result{TranslatedText: cached, Cached: true}, nil
		case !errors.Is(err, cache.ErrMiss):
			slog.Warn("translation cache read failed", "error", err)
		}
	}

	system, user, err := translatePrompt.Render(map[string]string{
		"source": target,
		"target": native,
		"text":   req.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("render translation prompt: %w", err)
	}

	reply, err := s.gw.Complete(ctx, llm.Completion{
		Provider:    s.provider,
		Model:       s.model,
		System:      system,
		Prompt:      user,
		Temperature: 0.2,
		MaxTokens:   tokenizer.CompletionBudget(req.Text),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	translated := strings.TrimSpace(reply.Text)
	slog.Info("translated text",
		"source", target,
		"target", native,
		"provider", reply.Provider,
		"model", reply.Model,
		"tokens", reply.Usage.Total(),
		"latency", reply.Latency,
		"cost_usd", reply.CostUSD,
	)

	if s.store != nil {
		if err := s.store.Set(ctx, key, translated, s.ttl); err != nil {
			slog.Warn("translation cache write failed", "error", err)
		}
	}
	return &Result{TranslatedText: translated}, nil
}

func cacheKey(source, target, text string) string {
	sum := sha256.Sum256([]byte(text))
	return cache.Key("translation", strings.ToLower(source), strings.ToLower(target), hex.EncodeToString(sum[:]))
}
