package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/nikhilbhutani/accentcoach/internal/config"
)

const (
	// SilenceThreshold is the RMS level a chunk must exceed to count as speech.
	SilenceThreshold = 500
	// ChunkSamples is the trim window: 1024 bytes of 16-bit PCM.
	ChunkSamples = 512
	// ValidationFrames is how many frames Validate inspects for loudness.
	ValidationFrames = 1024

	TargetPeak = 32000
	MaxGain    = 2.0

	// MinEncodedBytes is the smallest normalized WAV worth recognizing.
	MinEncodedBytes = 1000
)

// Normalizer prepares uploaded audio for recognition. The Transcoder is only
// consulted for input that is not already a readable WAV container.
type Normalizer struct {
	transcoder Transcoder
}

func NewNormalizer(t Transcoder) *Normalizer {
	return &Normalizer{transcoder: t}
}

// EnsureContainer returns raw unchanged when it is a readable WAV, otherwise
// the transcoded WAV. Failures wrap ErrUnsupportedFormat.
func (n *Normalizer) EnsureContainer(ctx context.Context, raw []byte) ([]byte, error) {
	if len(raw) < MinContainerBytes {
		return nil, fmt.Errorf("%w: %d bytes of audio", ErrUnsupportedFormat, len(raw))
	}

	if hdr, err := ReadHeader(raw); err == nil {
		slog.Debug("valid wav container detected",
			"channels", hdr.Channels,
			"sample_width", hdr.SampleWidth,
			"sample_rate", hdr.SampleRate,
		)
		return raw, nil
	}

	if n.transcoder == nil {
		return nil, fmt.Errorf("%w: not a WAV file and no transcoder configured", ErrUnsupportedFormat)
	}

	converted, err := n.transcoder.Transcode(ctx, raw)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: transcode: %v", ErrUnsupportedFormat, err)
	}
	if _, err := ReadHeader(converted); err != nil {
		return nil, fmt.Errorf("transcoded output unreadable: %w", err)
	}
	return converted, nil
}

// Prepare runs EnsureContainer, the layout checks and Normalize. A quiet
// opening chunk is not fatal here; Normalize decides whether speech remains.
func (n *Normalizer) Prepare(ctx context.Context, raw []byte) ([]byte, error) {
	wavData, err := n.EnsureContainer(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := Inspect(wavData); err != nil {
		if !errors.Is(err, ErrInsufficientAudio) {
			return nil, err
		}
		slog.Debug("opening chunk is quiet, relying on trim", "error", err)
	}
	return Normalize(wavData)
}

// Validate is the fast admissibility gate: it reports whether the container
// has a supported layout and is not silent.
func Validate(data []byte) bool {
	if err := Inspect(data); err != nil {
		slog.Debug("audio rejected", "error", err)
		return false
	}
	return true
}

// Inspect explains why Validate rejects data. Layout problems wrap
// ErrUnsupportedFormat; silence wraps ErrInsufficientAudio.
func Inspect(data []byte) error {
	buf, err := Decode(data)
	if err != nil {
		return err
	}
	if buf.Channels < 1 || buf.Channels > 2 {
		return fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, buf.Channels)
	}
	switch buf.SampleWidth {
	case 1, 2, 4:
	default:
		return fmt.Errorf("%w: sample width %d bytes", ErrUnsupportedFormat, buf.SampleWidth)
	}
	if buf.SampleRate < 8000 || buf.SampleRate > 48000 {
		return fmt.Errorf("%w: sample rate %d Hz", ErrUnsupportedFormat, buf.SampleRate)
	}

	chunk := buf.Samples
	if limit := ValidationFrames * buf.Channels; len(chunk) > limit {
		chunk = chunk[:limit]
	}
	if len(chunk) == 0 {
		return fmt.Errorf("%w: no audio data", ErrInsufficientAudio)
	}
	if RMS(chunk) < 1 {
		return fmt.Errorf("%w: audio too quiet", ErrInsufficientAudio)
	}
	return nil
}

// Normalize converts a WAV container to mono 16-bit 16 kHz, trims silence and
// evens out the level. It returns ErrInsufficientAudio when too little speech
// remains.
func Normalize(data []byte) ([]byte, error) {
	buf, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if buf.Channels < 1 || buf.SampleWidth < 1 || buf.SampleWidth > 4 {
		return nil, fmt.Errorf("%w: %d channels, %d byte samples", ErrUnsupportedFormat, buf.Channels, buf.SampleWidth)
	}

	slog.Debug("normalizing audio",
		"channels", buf.Channels,
		"sample_width", buf.SampleWidth,
		"sample_rate", buf.SampleRate,
		"duration", buf.Duration(),
	)

	pcm := ToWidth16(ToMono(buf.Samples, buf.Channels), buf.SampleWidth)
	pcm = Resample16(pcm, buf.SampleRate, TargetSampleRate)

	start, end, ok := speechBounds(pcm)
	if !ok {
		return nil, fmt.Errorf("%w: audio contains mostly silence", ErrInsufficientAudio)
	}
	pcm = pcm[start:end]

	if peak := Peak(pcm); peak > 0 {
		pcm = Scale(pcm, math.Min(float64(TargetPeak)/float64(peak), MaxGain))
	}

	out, err := Encode(pcm, TargetSampleRate)
	if err != nil {
		return nil, err
	}
	if len(out) < MinEncodedBytes {
		return nil, fmt.Errorf("%w: %d bytes after trimming", ErrInsufficientAudio, len(out))
	}

	slog.Debug("audio normalized", "bytes", len(out), "rms", RMS(pcm))
	return out, nil
}

// speechBounds finds the region between the first and last chunk louder than
// SilenceThreshold, keeping one chunk before and two chunks after it.
func speechBounds(pcm []int16) (start, end int, ok bool) {
	n := len(pcm)
	start = -1
	for i := 0; i+ChunkSamples < n; i += ChunkSamples {
		if RMS(pcm[i:i+ChunkSamples]) > SilenceThreshold {
			start = max(0, i-ChunkSamples)
			break
		}
	}
	if start < 0 {
		return 0, 0, false
	}

	end = n
	for i := n - ChunkSamples; i > start; i -= ChunkSamples {
		if RMS(pcm[i:i+ChunkSamples]) > SilenceThreshold {
			end = min(n, i+2*ChunkSamples)
			break
		}
	}

	if end-start < 2*ChunkSamples {
		return 0, 0, false
	}
	return start, end, true
}

// IsInsufficient reports whether err means the clip held no usable speech.
func IsInsufficient(err error) bool {
	return errors.Is(err, ErrInsufficientAudio)
}

// NewNormalizerFromConfig builds a Normalizer with the ffmpeg transcoder from
// cfg. An empty FFmpegCommand leaves non-WAV input unsupported.
func NewNormalizerFromConfig(cfg config.AudioConfig) (*Normalizer, error) {
	if cfg.FFmpegCommand == "" {
		return NewNormalizer(nil), nil
	}
	tc, err := NewFFmpegTranscoder(cfg.FFmpegCommand)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg transcoder: %w", err)
	}
	return NewNormalizer(tc), nil
}
