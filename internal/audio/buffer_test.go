package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

// rawWAV writes a mono RIFF/WAVE container by hand so the fmt chunk can carry
// any format tag. subFormat is only written when tag is formatExtensible.
func rawWAV(tag uint16, bits, rate int, subFormat uint16, payload []byte) []byte {
	fmtSize := 16
	if tag == formatExtensible {
		fmtSize = 40
	}
	blockAlign := bits / 8

	var b bytes.Buffer
	le := func(v any) { _ = binary.Write(&b, binary.LittleEndian, v) }

	b.WriteString("RIFF")
	le(uint32(4 + 8 + fmtSize + 8 + len(payload)))
	b.WriteString("WAVE")

	b.WriteString("fmt ")
	le(uint32(fmtSize))
	le(tag)
	le(uint16(1))
	le(uint32(rate))
	le(uint32(rate * blockAlign))
	le(uint16(blockAlign))
	le(uint16(bits))
	if tag == formatExtensible {
		le(uint16(22))
		le(uint16(bits))
		le(uint32(0x4)) // front center
		le(subFormat)
		// remainder of KSDATAFORMAT_SUBTYPE GUID
		b.Write([]byte{0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71})
	}

	b.WriteString("data")
	le(uint32(len(payload)))
	b.Write(payload)
	return b.Bytes()
}

// quietFloatClip is two seconds of a float32 tone at amplitude 0.001.
func quietFloatClip() []byte {
	payload := make([]byte, 0, 2*TargetSampleRate*4)
	for i := 0; i < 2*TargetSampleRate; i++ {
		v := float32(0.001 * math.Sin(2*math.Pi*440*float64(i)/TargetSampleRate))
		payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(v))
	}
	return rawWAV(3, 32, TargetSampleRate, 0, payload)
}

func pcm16Payload(samples []int16) []byte {
	out := make([]byte, 0, 2*len(samples))
	for _, s := range samples {
		out = binary.LittleEndian.AppendUint16(out, uint16(s))
	}
	return out
}

func TestReadHeaderFormatTags(t *testing.T) {
	speech := pcm16Payload(ToWidth16(square(4096, 8000), 2))

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"pcm", rawWAV(formatPCM, 16, 16000, 0, speech), false},
		{"extensible pcm", rawWAV(formatExtensible, 16, 16000, formatPCM, speech), false},
		{"ieee float", quietFloatClip(), true},
		{"a-law", rawWAV(6, 8, 8000, 0, bytes.Repeat([]byte{0xd5}, 4096)), true},
		{"extensible float", rawWAV(formatExtensible, 32, 16000, 3, make([]byte, 8192)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadHeader(tt.data)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Fatalf("ReadHeader: expected ErrUnsupportedFormat, got %v", err)
				}
				if _, err := Decode(tt.data); !errors.Is(err, ErrUnsupportedFormat) {
					t.Fatalf("Decode: expected ErrUnsupportedFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadHeader: unexpected error: %v", err)
			}
		})
	}
}

func TestDecodeExtensiblePCM(t *testing.T) {
	samples := ToWidth16(square(2048, 12000), 2)
	buf, err := Decode(rawWAV(formatExtensible, 16, 16000, formatPCM, pcm16Payload(samples)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !buf.IsCanonical() {
		t.Fatalf("expected canonical layout, got %+v", buf)
	}
	if len(buf.Samples) != len(samples) || buf.Samples[0] != int(samples[0]) {
		t.Fatalf("expected %d samples starting %d, got %d starting %v",
			len(samples), samples[0], len(buf.Samples), buf.Samples[:1])
	}
}

func TestEnsureContainerTranscodesFloatWAV(t *testing.T) {
	canonical := encodeWAV(t, make([]int, 2*TargetSampleRate), TargetSampleRate, 16, 1)
	tc := &fakeTranscoder{out: canonical}

	out, err := NewNormalizer(tc).EnsureContainer(context.Background(), quietFloatClip())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tc.calls != 1 {
		t.Fatalf("expected float WAV to be transcoded, transcoder called %d times", tc.calls)
	}
	if !bytes.Equal(out, canonical) {
		t.Fatal("expected transcoder output")
	}

	// The transcoded quiet clip must end up as insufficient audio, not speech.
	if _, err := NewNormalizer(tc).Prepare(context.Background(), quietFloatClip()); !errors.Is(err, ErrInsufficientAudio) {
		t.Fatalf("Prepare: expected ErrInsufficientAudio, got %v", err)
	}
}
