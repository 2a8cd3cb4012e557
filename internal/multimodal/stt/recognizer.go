// Package stt adapts speech recognition services to a single Recognizer
// interface. Recognizers never return errors: every failure is reported as an
// Outcome so callers can treat a failed locale as "no evidence".
package stt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nikhilbhutani/accentcoach/internal/config"
)

// Kind classifies a recognition attempt.
type Kind int

const (
	KindRecognized Kind = iota
	KindNoMatch
	KindCanceled
	KindTimedOut
)

func (k Kind) String() string {
	switch k {
	case KindRecognized:
		return "recognized"
	case KindNoMatch:
		return "no_match"
	case KindCanceled:
		return "canceled"
	case KindTimedOut:
		return "timed_out"
	}
	return "unknown"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for _, c := range []Kind{KindRecognized, KindNoMatch, KindCanceled, KindTimedOut} {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown outcome kind %q", b)
}

// Outcome is the result of recognizing one clip under one locale. Text,
// Confidence and Elapsed are only meaningful for KindRecognized.
type Outcome struct {
	Kind       Kind
	Text       string
	Confidence float64
	Elapsed    time.Duration
	Reason     string
	Detail     string
}

func Recognized(text string, confidence float64, elapsed time.Duration) Outcome {
	return Outcome{Kind: KindRecognized, Text: text, Confidence: confidence, Elapsed: elapsed}
}

func NoMatch(reason string) Outcome {
	return Outcome{Kind: KindNoMatch, Reason: reason}
}

func Canceled(reason, detail string) Outcome {
	return Outcome{Kind: KindCanceled, Reason: reason, Detail: detail}
}

func TimedOut() Outcome {
	return Outcome{Kind: KindTimedOut, Reason: "timeout"}
}

// Recognizer transcribes a canonical mono 16-bit 16 kHz WAV clip under the
// given BCP-47 locale.
type Recognizer interface {
	Recognize(ctx context.Context, wav []byte, locale string) Outcome
	Name() string
}

// New builds the recognizer selected by cfg.Backend.
func New(cfg config.SpeechConfig) (Recognizer, error) {
	switch cfg.Backend {
	case "azure":
		return NewAzureRecognizer(AzureConfig{Key: cfg.AzureKey, Region: cfg.AzureRegion}), nil
	case "openai":
		return NewOpenAIRecognizer(OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}), nil
	case "local":
		return NewLocalRecognizer(LocalConfig{BaseURL: cfg.LocalBaseURL}), nil
	}
	return nil, fmt.Errorf("unknown speech backend %q", cfg.Backend)
}

// failed turns a transport error into an Outcome, distinguishing deadline
// expiry from cancellation.
func failed(ctx context.Context, err error) Outcome {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return TimedOut()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Canceled("canceled", ctxErr.Error())
	}
	return Canceled("error", err.Error())
}
