package audio

import (
	"context"
	"testing"
)

func TestNewFFmpegTranscoder(t *testing.T) {
	tc, err := NewFFmpegTranscoder(`"/opt/media tools/ffmpeg" -hide_banner`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	args := tc.Args()
	if args[0] != "/opt/media tools/ffmpeg" {
		t.Fatalf("expected quoted path kept intact, got %q", args[0])
	}
	if args[1] != "-hide_banner" {
		t.Fatalf("expected user flags before conversion flags, got %q", args[1])
	}
	if last := args[len(args)-1]; last != "pipe:1" {
		t.Fatalf("expected output to stdout, got %q", last)
	}

	// Args must not grow the stored command between calls.
	if again := tc.Args(); len(again) != len(args) {
		t.Fatalf("Args() changed length: %d then %d", len(args), len(again))
	}
}

func TestNewFFmpegTranscoderRejectsEmpty(t *testing.T) {
	for _, cmd := range []string{"", "   ", `"unterminated`} {
		if _, err := NewFFmpegTranscoder(cmd); err == nil {
			t.Errorf("NewFFmpegTranscoder(%q): expected error", cmd)
		}
	}
}

func TestFFmpegTranscoderMissingBinary(t *testing.T) {
	tc, err := NewFFmpegTranscoder("/nonexistent/bin/ffmpeg-accentcoach")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tc.Transcode(context.Background(), []byte("not audio")); err == nil {
		t.Fatal("expected error for missing binary")
	}
}
