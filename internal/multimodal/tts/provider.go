// Package tts wraps text-to-speech backends behind one Provider interface.
package tts

import (
	"context"
	"fmt"

	"github.com/nikhilbhutani/accentcoach/internal/config"
)

// SynthesisRequest holds the parameters for text-to-speech generation.
type SynthesisRequest struct {
	Input string  `json:"input"`
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
}

// SynthesisResult holds the generated audio and its content type.
type SynthesisResult struct {
	Audio       []byte
	ContentType string // "audio/mpeg" (OpenAI) or "audio/wav" (Azure, Piper)
}

// Provider is the interface for text-to-speech backends.
type Provider interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
	Name() string
}

// New builds the backend selected by cfg.Backend.
func New(cfg config.TTSConfig) (Provider, error) {
	switch cfg.Backend {
	case "azure":
		return NewAzureTTS(AzureTTSConfig{
			Key:    cfg.AzureKey,
			Region: cfg.AzureRegion,
			Voice:  cfg.AzureVoice,
		}), nil
	case "openai":
		return NewOpenAITTS(OpenAITTSConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}), nil
	case "local":
		return NewLocalTTS(LocalTTSConfig{
			PiperBinPath: cfg.LocalBinPath,
			ModelPath:    cfg.LocalModel,
		}), nil
	}
	return nil, fmt.Errorf("unknown tts backend %q", cfg.Backend)
}
