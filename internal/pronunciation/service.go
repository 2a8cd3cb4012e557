// Package pronunciation transcribes learner speech and scores it against a
// reference text, turning word and phoneme scores into feedback.
package pronunciation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/nikhilbhutani/accentcoach/internal/audio"
	"github.com/nikhilbhutani/accentcoach/internal/multimodal/stt"
)

const (
	// PoorWordThreshold is the word accuracy below which a word is reported.
	PoorWordThreshold = 80
	// PoorPhonemeThreshold is the phoneme accuracy below which a sound gets a tip.
	PoorPhonemeThreshold = 60
	// GoodScore separates the two overall feedback messages.
	GoodScore = 80
)

// ErrRecognitionFailed covers recognizer timeouts and service errors.
var ErrRecognitionFailed = errors.New("speech recognition failed")

// WrongWordError is returned in word practice when the learner said a
// different word than the one requested.
type WrongWordError struct {
	Said     string
	Expected string
}

func (e *WrongWordError) Error() string {
	return fmt.Sprintf("Incorrect word. You said '%s' but should have said '%s'. Please try again.", e.Said, e.Expected)
}

type Preparer interface {
	Prepare(ctx context.Context, raw []byte) ([]byte, error)
}

type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Locale     string  `json:"locale"`
}

type Request struct {
	ReferenceText string
	Locale        string
	// WordPractice rejects the attempt when the transcript is not the
	// reference word before scoring it.
	WordPractice bool
}

type PoorWord struct {
	Word                  string                  `json:"word"`
	Accuracy              float64                 `json:"accuracy"`
	ErrorType             string                  `json:"error_type"`
	MispronouncedPhonemes []stt.PhonemeAssessment `json:"mispronounced_phonemes,omitempty"`
}

type Feedback struct {
	PronunciationScore float64    `json:"pronunciation_score"`
	AccuracyScore      float64    `json:"accuracy_score"`
	FluencyScore       float64    `json:"fluency_score"`
	CompletenessScore  float64    `json:"completeness_score"`
	FeedbackMessages   []string   `json:"feedback_messages"`
	PoorWords          []PoorWord `json:"poor_words"`
	Tips               []string   `json:"tips,omitempty"`
	TranscribedText    string     `json:"transcribed_text"`
}

// Service is safe for concurrent use. A nil assessor makes Assess return
// stt.ErrAssessmentUnavailable while Transcribe keeps working.
type Service struct {
	recognizer stt.Recognizer
	assessor   stt.Assessor
	preparer   Preparer
}

func NewService(rec stt.Recognizer, assessor stt.Assessor, prep Preparer) *Service {
	return &Service{recognizer: rec, assessor: assessor, preparer: prep}
}

// Transcribe recognizes raw under locale.
func (s *Service) Transcribe(ctx context.Context, raw []byte, locale string) (*Transcript, error) {
	clip, err := s.prepare(ctx, raw)
	if err != nil {
		return nil, err
	}

	out := s.recognizer.Recognize(ctx, clip, locale)
	switch out.Kind {
	case stt.KindRecognized:
		return &Transcript{Text: out.Text, Confidence: out.Confidence, Locale: locale}, nil
	case stt.KindNoMatch:
		return nil, fmt.Errorf("%w: %s", stt.ErrNoSpeech, out.Reason)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s %s", ErrRecognitionFailed, out.Reason, out.Detail)
}

// Assess scores raw against req.ReferenceText.
func (s *Service) Assess(ctx context.Context, raw []byte, req Request) (*Feedback, error) {
	if s.assessor == nil {
		return nil, stt.ErrAssessmentUnavailable
	}
	reference := strings.TrimSpace(req.ReferenceText)
	if reference == "" {
		return nil, errors.New("reference text is required")
	}

	clip, err := s.prepare(ctx, raw)
	if err != nil {
		return nil, err
	}

	res, err := s.assessor.Assess(ctx, clip, req.Locale, reference)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, stt.ErrNoSpeech) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRecognitionFailed, err)
	}

	if req.WordPractice && CleanText(res.Transcript) != CleanText(reference) {
		return nil, &WrongWordError{Said: res.Transcript, Expected: reference}
	}

	fb := buildFeedback(res, reference)
	slog.Info("pronunciation assessed",
		"locale", req.Locale,
		"score", fb.PronunciationScore,
		"poor_words", len(fb.PoorWords),
		"word_practice", req.WordPractice,
	)
	return fb, nil
}

// prepare normalizes the upload. Silence is reported as no speech.
func (s *Service) prepare(ctx context.Context, raw []byte) ([]byte, error) {
	clip, err := s.preparer.Prepare(ctx, raw)
	if err == nil {
		return clip, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	switch {
	case errors.Is(err, audio.ErrInsufficientAudio):
		return nil, fmt.Errorf("%w: %v", stt.ErrNoSpeech, err)
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return nil, err
	}
	return nil, fmt.Errorf("prepare audio: %w", err)
}

func buildFeedback(res *stt.Assessment, reference string) *Feedback {
	fb := &Feedback{
		PronunciationScore: res.PronunciationScore,
		AccuracyScore:      res.AccuracyScore,
		FluencyScore:       res.FluencyScore,
		CompletenessScore:  res.CompletenessScore,
		PoorWords:          []PoorWord{},
		TranscribedText:    res.Transcript,
	}
	if res.PronunciationScore < GoodScore {
		fb.FeedbackMessages = []string{fmt.Sprintf("Your pronunciation needs improvement. Try to pronounce '%s' more clearly.", reference)}
	} else {
		fb.FeedbackMessages = []string{fmt.Sprintf("Good job! Your pronunciation of '%s' is clear.", reference)}
	}

	for _, w := range res.Words {
		if w.AccuracyScore >= PoorWordThreshold {
			continue
		}
		pw := PoorWord{Word: w.Word, Accuracy: w.AccuracyScore, ErrorType: w.ErrorType}
		for _, p := range w.Phonemes {
			if p.AccuracyScore < PoorPhonemeThreshold {
				pw.MispronouncedPhonemes = append(pw.MispronouncedPhonemes, p)
				fb.Tips = append(fb.Tips, PhonemeTip(p.Phoneme, w.Word))
			}
		}
		fb.PoorWords = append(fb.PoorWords, pw)
	}
	return fb
}

// CleanText lowercases s, removes punctuation and collapses whitespace.
func CleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
