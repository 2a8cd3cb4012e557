package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// noSpeechThreshold is the mean no_speech_prob above which a Whisper
// transcript is treated as a non-match.
const noSpeechThreshold = 0.6

// OpenAIConfig holds configuration for the OpenAI STT backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // default: "https://api.openai.com/v1"
	Model   string // default: "whisper-1"
}

// OpenAIRecognizer transcribes audio using OpenAI's Whisper API (or a
// compatible endpoint). Whisper has no per-utterance confidence, so it is
// derived from the segment log-probabilities.
type OpenAIRecognizer struct {
	cfg        OpenAIConfig
	httpClient *http.Client
}

// NewOpenAIRecognizer creates an OpenAIRecognizer with sensible defaults applied.
func NewOpenAIRecognizer(cfg OpenAIConfig) *OpenAIRecognizer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenAIRecognizer{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (o *OpenAIRecognizer) Name() string { return "openai-whisper" }

type whisperResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		AvgLogprob   float64 `json:"avg_logprob"`
		NoSpeechProb float64 `json:"no_speech_prob"`
	} `json:"segments"`
}

// Recognize uploads the clip as a multipart form. Whisper takes an ISO-639-1
// language, so only the language part of locale is sent.
func (o *OpenAIRecognizer) Recognize(ctx context.Context, wav []byte, locale string) Outcome {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "clip.wav")
	if err != nil {
		return Canceled("error", fmt.Sprintf("create form file: %v", err))
	}
	if _, err = fw.Write(wav); err != nil {
		return Canceled("error", fmt.Sprintf("copy audio data: %v", err))
	}

	_ = mw.WriteField("model", o.cfg.Model)
	_ = mw.WriteField("response_format", "verbose_json")
	if lang := languageOf(locale); lang != "" {
		_ = mw.WriteField("language", lang)
	}

	if err = mw.Close(); err != nil {
		return Canceled("error", fmt.Sprintf("close multipart writer: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/audio/transcriptions", &body)
	if err != nil {
		return Canceled("error", err.Error())
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if o.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}

	start := time.Now()
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return failed(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return failed(ctx, err)
	}
	elapsed := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return Canceled(fmt.Sprintf("http %d", resp.StatusCode), string(respBody))
	}

	var wr whisperResponse
	if err := json.Unmarshal(respBody, &wr); err != nil {
		return Canceled("error", fmt.Sprintf("parse response: %v", err))
	}
	return wr.outcome(elapsed)
}

func (wr whisperResponse) outcome(elapsed time.Duration) Outcome {
	text := strings.TrimSpace(wr.Text)
	if text == "" {
		return NoMatch("empty transcript")
	}
	if len(wr.Segments) == 0 {
		return Recognized(text, 1.0, elapsed)
	}

	var logprob, noSpeech float64
	for _, s := range wr.Segments {
		logprob += s.AvgLogprob
		noSpeech += s.NoSpeechProb
	}
	n := float64(len(wr.Segments))
	if noSpeech/n > noSpeechThreshold {
		return NoMatch("no speech")
	}
	confidence := math.Exp(logprob / n)
	confidence = math.Max(0, math.Min(1, confidence))
	return Recognized(text, confidence, elapsed)
}

// languageOf returns the primary language subtag of a BCP-47 locale.
func languageOf(locale string) string {
	lang, _, _ := strings.Cut(locale, "-")
	return strings.ToLower(lang)
}
