package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nikhilbhutani/accentcoach/internal/config"
)

const assessedBody = `{
  "RecognitionStatus": "Success",
  "DisplayText": "Think about it.",
  "NBest": [{
    "Display": "Think about it.",
    "AccuracyScore": 71, "FluencyScore": 88, "CompletenessScore": 100, "PronScore": 76.5,
    "Words": [
      {"Word": "think", "AccuracyScore": 42, "ErrorType": "Mispronunciation",
       "Phonemes": [{"Phoneme": "θ", "AccuracyScore": 12}, {"Phoneme": "ɪ", "AccuracyScore": 90}]},
      {"Word": "about", "AccuracyScore": 95, "ErrorType": "None"},
      {"Word": "it", "AccuracyScore": 98, "ErrorType": "None"}
    ]
  }]
}`

const nestedBody = `{
  "RecognitionStatus": "Success",
  "DisplayText": "Hello.",
  "NBest": [{
    "PronunciationAssessment": {"AccuracyScore": 90, "FluencyScore": 80, "CompletenessScore": 100, "PronScore": 88},
    "Words": [{"Word": "hello", "PronunciationAssessment": {"AccuracyScore": 90, "ErrorType": "None"}}]
  }]
}`

func TestAzureAssess(t *testing.T) {
	var params assessmentParams
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("language"); got != "en-GB" {
			t.Errorf("language = %q", got)
		}
		raw, err := base64.StdEncoding.DecodeString(r.Header.Get("Pronunciation-Assessment"))
		if err != nil {
			t.Errorf("header is not base64: %v", err)
		}
		_ = json.Unmarshal(raw, &params)
		_, _ = w.Write([]byte(assessedBody))
	}))
	defer srv.Close()

	a := NewAzureRecognizer(AzureConfig{Key: "test-key", Endpoint: srv.URL})
	res, err := a.Assess(context.Background(), []byte("wav"), "en-GB", "Think about it")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	if params.ReferenceText != "Think about it" || params.Granularity != "Phoneme" || params.GradingSystem != "HundredMark" || !params.EnableMiscue {
		t.Fatalf("unexpected assessment params %+v", params)
	}
	if res.PronunciationScore != 76.5 || res.FluencyScore != 88 || res.Transcript != "Think about it." {
		t.Fatalf("unexpected scores %+v", res)
	}
	if len(res.Words) != 3 || res.Words[0].ErrorType != "Mispronunciation" {
		t.Fatalf("unexpected words %+v", res.Words)
	}
	if ph := res.Words[0].Phonemes; len(ph) != 2 || ph[0].Phoneme != "θ" || ph[0].AccuracyScore != 12 {
		t.Fatalf("unexpected phonemes %+v", ph)
	}
}

func TestAzureAssessNestedScores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(nestedBody))
	}))
	defer srv.Close()

	res, err := NewAzureRecognizer(AzureConfig{Key: "k", Endpoint: srv.URL}).Assess(context.Background(), nil, "en-US", "Hello")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if res.PronunciationScore != 88 || res.Words[0].AccuracyScore != 90 || res.Words[0].ErrorType != "None" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAzureAssessFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		noSpeech  bool
		errSubstr string
	}{
		{"no match", http.StatusOK, `{"RecognitionStatus":"NoMatch"}`, true, "NoMatch"},
		{"silence", http.StatusOK, `{"RecognitionStatus":"InitialSilenceTimeout"}`, true, "InitialSilenceTimeout"},
		{"no nbest", http.StatusOK, `{"RecognitionStatus":"Success","DisplayText":"hi"}`, true, "no assessed result"},
		{"service error", http.StatusOK, `{"RecognitionStatus":"Error"}`, false, "Error"},
		{"unauthorized", http.StatusUnauthorized, "bad key", false, "401"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewAzureRecognizer(AzureConfig{Key: "k", Endpoint: srv.URL}).Assess(context.Background(), nil, "en-US", "hi")
			if err == nil || !strings.Contains(err.Error(), tt.errSubstr) {
				t.Fatalf("expected error containing %q, got %v", tt.errSubstr, err)
			}
			if got := errors.Is(err, ErrNoSpeech); got != tt.noSpeech {
				t.Fatalf("ErrNoSpeech = %v, want %v", got, tt.noSpeech)
			}
		})
	}
}

func TestNewAssessorRequiresAzureKey(t *testing.T) {
	if _, err := NewAssessor(config.SpeechConfig{Backend: "openai"}); !errors.Is(err, ErrAssessmentUnavailable) {
		t.Fatalf("expected ErrAssessmentUnavailable, got %v", err)
	}
	a, err := NewAssessor(config.SpeechConfig{Backend: "local", AzureKey: "k", AzureRegion: "westeurope"})
	if err != nil || a == nil {
		t.Fatalf("NewAssessor = %v, %v", a, err)
	}
}
