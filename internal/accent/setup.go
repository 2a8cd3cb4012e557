package accent

import (
	"fmt"
	"log/slog"

	"github.com/nikhilbhutani/accentcoach/internal/audio"
	"github.com/nikhilbhutani/accentcoach/internal/config"
	"github.com/nikhilbhutani/accentcoach/internal/multimodal/stt"
)

// NewFromConfig wires the recognizer, the audio normalizer and the candidate
// catalog selected by cfg. The API server and the worker share it.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Detector, error) {
	rec, err := stt.New(cfg.Speech)
	if err != nil {
		return nil, fmt.Errorf("speech recognizer: %w", err)
	}

	normalizer, err := audio.NewNormalizerFromConfig(cfg.Audio)
	if err != nil {
		return nil, err
	}

	catalog, err := LoadCatalog(cfg.Accent.CandidatesFile)
	if err != nil {
		return nil, err
	}

	all := append([]Option{
		WithTimeout(cfg.Accent.RecognitionTimeout),
		WithProfiles(catalog.Profiles),
	}, opts...)

	slog.Info("accent detector configured",
		"recognizer", rec.Name(),
		"candidates", len(catalog.Candidates),
		"timeout", cfg.Accent.RecognitionTimeout,
	)
	return NewDetector(rec, normalizer, catalog.Candidates, all...), nil
}
