// Package accent ranks how likely a clip is to have been spoken in each of a
// fixed set of regional accents. Every candidate locale gets its own
// recognition pass; transcripts are scored lexically and the weighted scores
// are turned into a percentage distribution.
package accent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nikhilbhutani/accentcoach/internal/audio"
	"github.com/nikhilbhutani/accentcoach/internal/multimodal/stt"
)

// DefaultTimeout bounds each candidate's recognition call.
const DefaultTimeout = 5 * time.Second

// ErrAggregation is returned when no distribution can be computed at all.
var ErrAggregation = errors.New("accent aggregation failed")

// Preparer converts uploaded bytes into canonical recognition input.
type Preparer interface {
	Prepare(ctx context.Context, raw []byte) ([]byte, error)
}

// Recorder receives per-candidate and per-request measurements.
type Recorder interface {
	RecordRecognition(ctx context.Context, locale string, kind stt.Kind, elapsed time.Duration)
	RecordDetection(ctx context.Context, fallback bool, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordRecognition(context.Context, string, stt.Kind, time.Duration) {}
func (nopRecorder) RecordDetection(context.Context, bool, time.Duration)               {}

// ScoredCandidate is the per-candidate diagnostic record of a detection.
type ScoredCandidate struct {
	Label          string   `json:"label"`
	Locale         string   `json:"locale"`
	Outcome        stt.Kind `json:"outcome"`
	Reason         string   `json:"reason,omitempty"`
	Transcript     string   `json:"transcript,omitempty"`
	Confidence     float64  `json:"confidence"`
	ElapsedSeconds float64  `json:"elapsed_seconds"`
	RawScore       float64  `json:"raw_score"`
	WeightedScore  float64  `json:"weighted_score"`
}

// Result is the outcome of one detection. Candidates is diagnostic only and
// never changes Probabilities.
type Result struct {
	Probabilities  Probabilities     `json:"probabilities"`
	Candidates     []ScoredCandidate `json:"candidates,omitempty"`
	Fallback       bool              `json:"fallback"`
	NormalizeError string            `json:"normalize_error,omitempty"`
}

// Detector runs recognition for every candidate and aggregates the scores.
// It holds no per-request state and is safe for concurrent use.
type Detector struct {
	recognizer stt.Recognizer
	preparer   Preparer
	candidates []Candidate
	scorer     *Scorer
	timeout    time.Duration
	recorder   Recorder
}

type Option func(*Detector)

// WithTimeout sets the per-candidate recognition timeout.
func WithTimeout(d time.Duration) Option {
	return func(det *Detector) {
		if d > 0 {
			det.timeout = d
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(det *Detector) {
		if r != nil {
			det.recorder = r
		}
	}
}

// WithProfiles replaces the built-in scoring profiles.
func WithProfiles(p map[string]Profile) Option {
	return func(det *Detector) {
		det.scorer = NewScorer(p)
	}
}

func NewDetector(rec stt.Recognizer, prep Preparer, candidates []Candidate, opts ...Option) *Detector {
	d := &Detector{
		recognizer: rec,
		preparer:   prep,
		candidates: append([]Candidate(nil), candidates...),
		scorer:     defaultScorer,
		timeout:    DefaultTimeout,
		recorder:   nopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Candidates returns a copy of the configured candidate set.
func (d *Detector) Candidates() []Candidate {
	return append([]Candidate(nil), d.candidates...)
}

// Detect normalizes raw once, recognizes it under every candidate locale
// concurrently and returns the ranked distribution. Audio that cannot be
// decoded at all yields audio.ErrUnsupportedFormat; a canceled ctx yields
// ctx.Err() and no partial result.
func (d *Detector) Detect(ctx context.Context, raw []byte) (*Result, error) {
	start := time.Now()

	totalWeight, err := d.totalWeight()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	clip, err := d.preparer.Prepare(ctx, raw)
	skipRecognition := false
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		switch {
		case errors.Is(err, audio.ErrUnsupportedFormat):
			return nil, err
		case errors.Is(err, audio.ErrInsufficientAudio):
			skipRecognition = true
		default:
			clip = raw
		}
		slog.Warn("audio normalization failed, continuing", "error", err, "skip_recognition", skipRecognition)
		res.NormalizeError = err.Error()
	}

	outcomes := make([]stt.Outcome, len(d.candidates))
	if skipRecognition {
		for i := range outcomes {
			outcomes[i] = stt.NoMatch("insufficient audio")
		}
	} else {
		var g errgroup.Group
		for i, c := range d.candidates {
			g.Go(func() error {
				cctx, cancel := context.WithTimeout(ctx, d.timeout)
				defer cancel()
				outcomes[i] = d.recognize(cctx, clip, c.Locale)
				return nil
			})
		}
		_ = g.Wait()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var total float64
	res.Candidates = make([]ScoredCandidate, len(d.candidates))
	for i, c := range d.candidates {
		out := outcomes[i]
		sc := ScoredCandidate{
			Label:   c.Label,
			Locale:  c.Locale,
			Outcome: out.Kind,
			Reason:  out.Reason,
		}
		if out.Kind == stt.KindRecognized {
			sc.Transcript = out.Text
			sc.Confidence = out.Confidence
			sc.ElapsedSeconds = out.Elapsed.Seconds()
			sc.RawScore = d.scorer.Score(out.Text, out.Elapsed, out.Confidence, c.Locale)
		} else {
			slog.Info("candidate produced no score", "locale", c.Locale, "outcome", out.Kind.String(), "reason", out.Reason, "detail", out.Detail)
		}
		sc.WeightedScore = sc.RawScore * c.Weight
		total += sc.WeightedScore
		res.Candidates[i] = sc
		d.recorder.RecordRecognition(ctx, c.Locale, out.Kind, out.Elapsed)
	}

	entries := make([]Entry, len(d.candidates))
	if total > 0 && !math.IsInf(total, 0) {
		for i, sc := range res.Candidates {
			entries[i] = Entry{Label: sc.Label, Percentage: sc.WeightedScore / total * 100}
		}
	} else {
		res.Fallback = true
		for i, c := range d.candidates {
			entries[i] = Entry{Label: c.Label, Percentage: c.Weight / totalWeight * 100}
		}
	}
	for _, e := range entries {
		if math.IsNaN(e.Percentage) || e.Percentage < 0 || e.Percentage > 100+1e-9 {
			return nil, fmt.Errorf("%w: %s has percentage %v", ErrAggregation, e.Label, e.Percentage)
		}
	}
	res.Probabilities = rank(entries)

	elapsed := time.Since(start)
	d.recorder.RecordDetection(ctx, res.Fallback, elapsed)
	slog.Info("accent detection complete",
		"fallback", res.Fallback,
		"total_score", total,
		"elapsed", elapsed,
		"top", res.Probabilities[0].Label,
	)
	return res, nil
}

func (d *Detector) totalWeight() (float64, error) {
	if len(d.candidates) == 0 {
		return 0, fmt.Errorf("%w: no candidates configured", ErrAggregation)
	}
	var sum float64
	for _, c := range d.candidates {
		sum += c.Weight
	}
	if !(sum > 0) || math.IsInf(sum, 0) {
		return 0, fmt.Errorf("%w: candidate weights sum to %v", ErrAggregation, sum)
	}
	return sum, nil
}

// recognize enforces ctx on the recognizer even when the backend does not
// honor it, and turns a panicking backend into a Canceled outcome.
func (d *Detector) recognize(ctx context.Context, clip []byte, locale string) stt.Outcome {
	ch := make(chan stt.Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recognizer panicked", "locale", locale, "panic", r)
				ch <- stt.Canceled("panic", fmt.Sprint(r))
			}
		}()
		ch <- d.recognizer.Recognize(ctx, clip, locale)
	}()

	select {
	case out := <-ch:
		return out
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return stt.TimedOut()
		}
		return stt.Canceled("canceled", ctx.Err().Error())
	}
}
