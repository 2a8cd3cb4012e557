package tts

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

// AzureTTSConfig holds configuration for the Azure Speech TTS backend.
type AzureTTSConfig struct {
	Key      string
	Region   string // default: "eastus"
	Voice    string // default: "en-US-JennyNeural"
	Endpoint string // overrides the regional endpoint
}

// AzureTTS synthesizes speech through the Azure Speech REST API using SSML.
type AzureTTS struct {
	cfg        AzureTTSConfig
	httpClient *http.Client
}

func NewAzureTTS(cfg AzureTTSConfig) *AzureTTS {
	if cfg.Region == "" {
		cfg.Region = "eastus"
	}
	if cfg.Voice == "" {
		cfg.Voice = "en-US-JennyNeural"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = fmt.Sprintf("https://%s.tts.speech.microsoft.com", cfg.Region)
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &AzureTTS{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (a *AzureTTS) Name() string { return "azure-tts" }

// Synthesize returns 16 kHz mono WAV audio.
func (a *AzureTTS) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	voice := req.Voice
	if voice == "" {
		voice = a.cfg.Voice
	}
	ssml, err := buildSSML(req.Input, voice, req.Speed)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint+"/cognitiveservices/v1", strings.NewReader(ssml))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.Key)
	httpReq.Header.Set("Content-Type", "application/ssml+xml")
	httpReq.Header.Set("X-Microsoft-OutputFormat", "riff-16khz-16bit-mono-pcm")
	httpReq.Header.Set("User-Agent", "accentcoach")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tts failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	return &SynthesisResult{
		Audio:       audio,
		ContentType: "audio/wav",
	}, nil
}

// buildSSML wraps text in a speak/voice document. The xml:lang is taken from
// the voice name ("en-GB-RyanNeural" -> "en-GB").
func buildSSML(text, voice string, speed float64) (string, error) {
	lang := "en-US"
	if parts := strings.SplitN(voice, "-", 3); len(parts) == 3 {
		lang = parts[0] + "-" + parts[1]
	}

	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(text)); err != nil {
		return "", fmt.Errorf("escape text: %w", err)
	}
	var attrVoice bytes.Buffer
	if err := xml.EscapeText(&attrVoice, []byte(voice)); err != nil {
		return "", fmt.Errorf("escape voice: %w", err)
	}

	body := escaped.String()
	if speed > 0 && speed != 1 {
		pct := int(math.Round((speed - 1) * 100))
		body = fmt.Sprintf("<prosody rate='%+d%%'>%s</prosody>", pct, body)
	}

	return fmt.Sprintf("<speak version='1.0' xml:lang='%s'><voice name='%s'>%s</voice></speak>",
		lang, attrVoice.String(), body), nil
}
