package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

// Transcoder converts arbitrary container/codec input into a canonical WAV.
type Transcoder interface {
	Transcode(ctx context.Context, raw []byte) ([]byte, error)
}

// FFmpegTranscoder pipes input through an ffmpeg subprocess. ffmpeg emits raw
// s16le PCM (a WAV written to a pipe has no usable size fields), which is then
// wrapped into a WAV container.
type FFmpegTranscoder struct {
	args []string
}

// NewFFmpegTranscoder parses command (e.g. "ffmpeg -hide_banner") with shell
// quoting rules; the conversion flags are appended to it.
func NewFFmpegTranscoder(command string) (*FFmpegTranscoder, error) {
	args, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse ffmpeg command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("ffmpeg command is empty")
	}
	return &FFmpegTranscoder{args: args}, nil
}

// Args returns the full argument vector used for each conversion.
func (t *FFmpegTranscoder) Args() []string {
	args := append([]string{}, t.args...)
	return append(args,
		"-loglevel", "error",
		"-i", "pipe:0",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", fmt.Sprint(TargetSampleRate),
		"-f", "s16le",
		"pipe:1",
	)
}

func (t *FFmpegTranscoder) Transcode(ctx context.Context, raw []byte) ([]byte, error) {
	args := t.Args()
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = bytes.NewReader(raw)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w (stderr: %s)", err, stderr.String())
	}

	pcm := stdout.Bytes()
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return Encode(samples, TargetSampleRate)
}
