package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nikhilbhutani/accentcoach/internal/config"
)

var (
	// ErrNoSpeech means the service heard nothing it could score.
	ErrNoSpeech = errors.New("no speech could be recognized")
	// ErrAssessmentUnavailable means no backend supports pronunciation assessment.
	ErrAssessmentUnavailable = errors.New("pronunciation assessment is not configured")
)

// Assessment scores are on a 0-100 scale.
type Assessment struct {
	Transcript         string           `json:"transcribed_text"`
	AccuracyScore      float64          `json:"accuracy_score"`
	FluencyScore       float64          `json:"fluency_score"`
	CompletenessScore  float64          `json:"completeness_score"`
	PronunciationScore float64          `json:"pronunciation_score"`
	Words              []WordAssessment `json:"words"`
}

type WordAssessment struct {
	Word          string              `json:"word"`
	AccuracyScore float64             `json:"accuracy"`
	ErrorType     string              `json:"error_type"` // None, Omission, Insertion, Mispronunciation
	Phonemes      []PhonemeAssessment `json:"phonemes,omitempty"`
}

type PhonemeAssessment struct {
	Phoneme       string  `json:"phoneme"`
	AccuracyScore float64 `json:"accuracy"`
}

// Assessor scores a clip against the text the speaker was asked to read.
type Assessor interface {
	Assess(ctx context.Context, wav []byte, locale, referenceText string) (*Assessment, error)
}

// NewAssessor returns the Azure assessor when an Azure key is configured,
// whichever recognition backend is selected.
func NewAssessor(cfg config.SpeechConfig) (Assessor, error) {
	if cfg.AzureKey == "" {
		return nil, ErrAssessmentUnavailable
	}
	return NewAzureRecognizer(AzureConfig{Key: cfg.AzureKey, Region: cfg.AzureRegion}), nil
}

type assessmentParams struct {
	ReferenceText string `json:"ReferenceText"`
	GradingSystem string `json:"GradingSystem"`
	Granularity   string `json:"Granularity"`
	Dimension     string `json:"Dimension"`
	EnableMiscue  bool   `json:"EnableMiscue"`
}

// azureScores appears flat on NBest entries and words, or nested under
// PronunciationAssessment depending on the API version.
type azureScores struct {
	AccuracyScore     float64 `json:"AccuracyScore"`
	FluencyScore      float64 `json:"FluencyScore"`
	CompletenessScore float64 `json:"CompletenessScore"`
	PronScore         float64 `json:"PronScore"`
	ErrorType         string  `json:"ErrorType"`
}

type azureAssessed struct {
	azureScores
	PronunciationAssessment *azureScores `json:"PronunciationAssessment"`
}

func (a azureAssessed) scores() azureScores {
	if a.PronunciationAssessment != nil {
		return *a.PronunciationAssessment
	}
	return a.azureScores
}

type azureAssessmentResult struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	NBest             []struct {
		azureAssessed
		Display string `json:"Display"`
		Words   []struct {
			azureAssessed
			Word     string `json:"Word"`
			Phonemes []struct {
				azureAssessed
				Phoneme string `json:"Phoneme"`
			} `json:"Phonemes"`
		} `json:"Words"`
	} `json:"NBest"`
}

// Assess runs recognition with the Pronunciation-Assessment header at phoneme
// granularity, hundred-mark grading and miscue detection.
func (a *AzureRecognizer) Assess(ctx context.Context, wav []byte, locale, referenceText string) (*Assessment, error) {
	params, err := json.Marshal(assessmentParams{
		ReferenceText: referenceText,
		GradingSystem: "HundredMark",
		Granularity:   "Phoneme",
		Dimension:     "Comprehensive",
		EnableMiscue:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode assessment params: %w", err)
	}

	q := url.Values{}
	q.Set("language", locale)
	q.Set("format", "detailed")
	endpoint := a.cfg.Endpoint + "/speech/recognition/conversation/cognitiveservices/v1?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(wav))
	if err != nil {
		return nil, fmt.Errorf("build assessment request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.Key)
	req.Header.Set("Content-Type", "audio/wav; codecs=audio/pcm; samplerate=16000")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Pronunciation-Assessment", base64.StdEncoding.EncodeToString(params))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("azure assessment: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read assessment response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("azure assessment failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var res azureAssessmentResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("parse assessment response: %w", err)
	}

	switch res.RecognitionStatus {
	case "Success":
	case "NoMatch", "InitialSilenceTimeout", "BabbleTimeout":
		return nil, fmt.Errorf("%w: %s", ErrNoSpeech, res.RecognitionStatus)
	default:
		return nil, fmt.Errorf("azure assessment: recognition status %q", res.RecognitionStatus)
	}
	if len(res.NBest) == 0 {
		return nil, fmt.Errorf("%w: response has no assessed result", ErrNoSpeech)
	}

	best := res.NBest[0]
	s := best.scores()
	out := &Assessment{
		Transcript:         strings.TrimSpace(res.DisplayText),
		AccuracyScore:      s.AccuracyScore,
		FluencyScore:       s.FluencyScore,
		CompletenessScore:  s.CompletenessScore,
		PronunciationScore: s.PronScore,
		Words:              make([]WordAssessment, 0, len(best.Words)),
	}
	if out.Transcript == "" {
		out.Transcript = strings.TrimSpace(best.Display)
	}
	for _, w := range best.Words {
		ws := w.scores()
		wa := WordAssessment{Word: w.Word, AccuracyScore: ws.AccuracyScore, ErrorType: ws.ErrorType}
		for _, p := range w.Phonemes {
			wa.Phonemes = append(wa.Phonemes, PhonemeAssessment{Phoneme: p.Phoneme, AccuracyScore: p.scores().AccuracyScore})
		}
		out.Words = append(out.Words, wa)
	}
	return out, nil
}
