package accent

import (
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	StrongBonus = 0.30
	MediumBonus = 0.20
	WeakBonus   = 0.10

	// MaxPatternBonus caps the lexical multiplier at a 100% boost.
	MaxPatternBonus = 2.0

	// averageWordLength normalizes the base score to typical English words.
	averageWordLength = 4.0

	minElapsed    = 0.5
	minTimeFactor = 0.5
	maxTimeFactor = 2.0

	defaultLocaleWeight = 1.0
)

// Breakdown records every factor that went into a score.
type Breakdown struct {
	Locale        string   `json:"locale"`
	WordCount     int      `json:"word_count"`
	AvgWordLength float64  `json:"avg_word_length"`
	BaseScore     float64  `json:"base_score"`
	PatternScore  float64  `json:"pattern_score"`
	PatternBonus  float64  `json:"pattern_bonus"`
	Matches       []string `json:"matches,omitempty"`
	TimeFactor    float64  `json:"time_factor"`
	LocaleWeight  float64  `json:"locale_weight"`
	Confidence    float64  `json:"confidence"`
	Final         float64  `json:"final"`
}

// Scorer turns a transcript into a fit score for one locale. It is safe for
// concurrent use; its profiles are never modified after construction.
type Scorer struct {
	profiles map[string]Profile
}

func NewScorer(profiles map[string]Profile) *Scorer {
	cp := make(map[string]Profile, len(profiles))
	for k, v := range profiles {
		cp[k] = v
	}
	return &Scorer{profiles: cp}
}

var defaultScorer = NewScorer(DefaultProfiles())

// Score evaluates transcript with the built-in profiles.
func Score(transcript string, elapsed time.Duration, confidence float64, locale string) float64 {
	return defaultScorer.Score(transcript, elapsed, confidence, locale)
}

func (s *Scorer) Score(transcript string, elapsed time.Duration, confidence float64, locale string) float64 {
	b := s.Breakdown(transcript, elapsed, confidence, locale)
	slog.Debug("accent score",
		"locale", b.Locale,
		"word_count", b.WordCount,
		"avg_word_length", b.AvgWordLength,
		"base_score", b.BaseScore,
		"time_factor", b.TimeFactor,
		"locale_weight", b.LocaleWeight,
		"pattern_score", b.PatternScore,
		"pattern_bonus", b.PatternBonus,
		"confidence", b.Confidence,
		"final", b.Final,
	)
	return b.Final
}

// Breakdown computes the score and all intermediate factors. The result is
// always finite and non-negative; degenerate input yields a zero Final.
func (s *Scorer) Breakdown(transcript string, elapsed time.Duration, confidence float64, locale string) Breakdown {
	b := Breakdown{Locale: locale, Confidence: confidence}

	words := tokenize(transcript)
	b.WordCount = len(words)
	if b.WordCount == 0 {
		return b
	}

	letters := 0
	for _, w := range words {
		letters += utf8.RuneCountInString(w)
	}
	n := float64(b.WordCount)
	b.AvgWordLength = float64(letters) / n
	b.BaseScore = n * (b.AvgWordLength / averageWordLength)

	switch {
	case b.WordCount < 3:
		b.BaseScore *= 0.7
	case b.WordCount < 5:
		b.BaseScore *= 0.9
	}

	b.LocaleWeight = defaultLocaleWeight
	if p, ok := s.profiles[locale]; ok {
		b.LocaleWeight = p.Weight
		joined := strings.Join(words, " ")
		for _, tier := range []struct {
			bonus    float64
			patterns []string
		}{
			{StrongBonus, p.Strong},
			{MediumBonus, p.Medium},
			{WeakBonus, p.Weak},
		} {
			for _, pat := range tier.patterns {
				if pat != "" && strings.Contains(joined, strings.ToLower(pat)) {
					b.PatternScore += tier.bonus
					b.Matches = append(b.Matches, pat)
				}
			}
		}
	}
	b.PatternBonus = math.Min(MaxPatternBonus, 1.0+b.PatternScore)

	b.TimeFactor = math.Min(maxTimeFactor, math.Max(minTimeFactor, 1.0/math.Max(elapsed.Seconds(), minElapsed)))

	final := b.BaseScore * b.TimeFactor * b.LocaleWeight * confidence * b.PatternBonus
	if math.IsNaN(final) || math.IsInf(final, 0) || final < 0 {
		final = 0
	}
	b.Final = final
	return b
}

// tokenize splits on whitespace, lowercases and strips surrounding . , ! ?
// Tokens that are only punctuation, such as "..." or "!", are dropped rather
// than kept as empty words. They therefore count toward neither the word
// count behind the short-utterance penalties nor the average word length.
func tokenize(s string) []string {
	fields := strings.Fields(s)
	words := fields[:0]
	for _, f := range fields {
		w := strings.ToLower(strings.Trim(f, ".,!?"))
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}
