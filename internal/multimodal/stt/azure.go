package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AzureConfig holds configuration for the Azure Speech short-audio backend.
type AzureConfig struct {
	Key      string
	Region   string // default: "eastus"
	Endpoint string // overrides the regional endpoint, e.g. for a private deployment
}

// AzureRecognizer calls the Azure Speech REST API for short audio, which
// performs one recognize-once pass per request.
type AzureRecognizer struct {
	cfg        AzureConfig
	httpClient *http.Client
}

func NewAzureRecognizer(cfg AzureConfig) *AzureRecognizer {
	if cfg.Region == "" {
		cfg.Region = "eastus"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = fmt.Sprintf("https://%s.stt.speech.microsoft.com", cfg.Region)
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &AzureRecognizer{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (a *AzureRecognizer) Name() string { return "azure-speech" }

type azureResult struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	NBest             []struct {
		Confidence *float64 `json:"Confidence"`
		Lexical    string   `json:"Lexical"`
		Display    string   `json:"Display"`
	} `json:"NBest"`
}

func (a *AzureRecognizer) Recognize(ctx context.Context, wav []byte, locale string) Outcome {
	q := url.Values{}
	q.Set("language", locale)
	q.Set("format", "detailed")
	endpoint := a.cfg.Endpoint + "/speech/recognition/conversation/cognitiveservices/v1?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(wav))
	if err != nil {
		return Canceled("error", err.Error())
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.Key)
	req.Header.Set("Content-Type", "audio/wav; codecs=audio/pcm; samplerate=16000")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return failed(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failed(ctx, err)
	}
	elapsed := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return Canceled(fmt.Sprintf("http %d", resp.StatusCode), string(body))
	}

	var res azureResult
	if err := json.Unmarshal(body, &res); err != nil {
		return Canceled("error", fmt.Sprintf("parse response: %v", err))
	}

	switch res.RecognitionStatus {
	case "Success":
		text := strings.TrimSpace(res.DisplayText)
		confidence := 1.0
		if len(res.NBest) > 0 {
			if res.NBest[0].Display != "" {
				text = strings.TrimSpace(res.NBest[0].Display)
			}
			if c := res.NBest[0].Confidence; c != nil {
				confidence = *c
			}
			if len(res.NBest) > 1 {
				slog.Debug("alternative transcripts", "locale", locale, "second", res.NBest[1].Lexical)
			}
		}
		if text == "" {
			return NoMatch("empty transcript")
		}
		return Recognized(text, confidence, elapsed)
	case "NoMatch":
		return NoMatch("no match")
	case "InitialSilenceTimeout":
		return NoMatch("initial silence timeout")
	case "BabbleTimeout":
		return NoMatch("initial babble timeout")
	case "Error":
		return Canceled("error", "service reported an error")
	default:
		return Canceled("unexpected status", res.RecognitionStatus)
	}
}
