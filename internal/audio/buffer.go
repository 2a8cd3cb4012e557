// Package audio turns uploaded clips into the canonical form used for
// recognition: a WAV container holding mono, 16-bit, 16 kHz linear PCM with
// leading and trailing silence removed.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// MinContainerBytes is the size of a canonical WAV header.
	MinContainerBytes = 44

	TargetSampleRate  = 16000
	TargetSampleWidth = 2
	TargetChannels    = 1
)

// WAV format tags. Only linear PCM is read directly; anything else is left to
// the transcoder.
const (
	formatPCM        = 0x0001
	formatExtensible = 0xFFFE
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInsufficientAudio = errors.New("insufficient audio")
)

// Buffer holds decoded PCM samples together with the format they were read in.
// Samples are interleaved when Channels > 1 and keep the numeric range of the
// source sample width (8-bit input is re-centred around zero).
type Buffer struct {
	Samples     []int
	Channels    int
	SampleWidth int // bytes per sample
	SampleRate  int
}

// Frames returns the number of sample frames (samples per channel).
func (b *Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// IsCanonical reports whether the buffer already has the target layout.
func (b *Buffer) IsCanonical() bool {
	return b.Channels == TargetChannels && b.SampleWidth == TargetSampleWidth && b.SampleRate == TargetSampleRate
}

// ReadHeader parses only the WAV header.
func ReadHeader(data []byte) (*Buffer, error) {
	if len(data) < MinContainerBytes {
		return nil, fmt.Errorf("%w: %d bytes is shorter than a WAV header", ErrUnsupportedFormat, len(data))
	}
	d := wav.NewDecoder(bytes.NewReader(data))
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if d.NumChans == 0 || d.SampleRate == 0 || d.BitDepth == 0 {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrUnsupportedFormat)
	}
	if err := checkLinearPCM(data, d.WavAudioFormat); err != nil {
		return nil, err
	}
	return &Buffer{
		Channels:    int(d.NumChans),
		SampleWidth: int(d.BitDepth) / 8,
		SampleRate:  int(d.SampleRate),
	}, nil
}

// Decode parses a WAV container and reads every sample.
func Decode(data []byte) (*Buffer, error) {
	if len(data) < MinContainerBytes {
		return nil, fmt.Errorf("%w: %d bytes is shorter than a WAV header", ErrUnsupportedFormat, len(data))
	}
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		return nil, fmt.Errorf("%w: not a readable WAV file", ErrUnsupportedFormat)
	}
	if err := checkLinearPCM(data, d.WavAudioFormat); err != nil {
		return nil, err
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: read samples: %v", ErrUnsupportedFormat, err)
	}

	buf := &Buffer{
		Channels:    int(d.NumChans),
		SampleWidth: int(d.BitDepth) / 8,
		SampleRate:  int(d.SampleRate),
	}
	if pcm != nil {
		buf.Samples = pcm.Data
	}
	// WAV stores 8-bit PCM unsigned.
	if buf.SampleWidth == 1 {
		for i, s := range buf.Samples {
			buf.Samples[i] = s - 128
		}
	}
	return buf, nil
}

// checkLinearPCM rejects IEEE float, A-law, mu-law and compressed WAVs, whose
// sample bits would otherwise be read as integers.
func checkLinearPCM(data []byte, tag uint16) error {
	switch tag {
	case formatPCM:
		return nil
	case formatExtensible:
		if sub, ok := extensibleSubFormat(data); ok && sub == formatPCM {
			return nil
		}
		return fmt.Errorf("%w: extensible WAV without a PCM sub-format", ErrUnsupportedFormat)
	}
	return fmt.Errorf("%w: WAV format tag 0x%04x is not linear PCM", ErrUnsupportedFormat, tag)
}

// extensibleSubFormat returns the first two bytes of the SubFormat GUID of a
// WAVE_FORMAT_EXTENSIBLE fmt chunk, which hold the actual format tag.
func extensibleSubFormat(data []byte) (uint16, bool) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, false
	}
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if id == "fmt " {
			if size < 26 || body+26 > len(data) {
				return 0, false
			}
			return binary.LittleEndian.Uint16(data[body+24 : body+26]), true
		}
		next := body + size + size%2
		if next <= off {
			return 0, false
		}
		off = next
	}
	return 0, false
}

// Encode writes mono 16-bit samples as a WAV container.
func Encode(samples []int16, sampleRate int) ([]byte, error) {
	ws := &memWriteSeeker{}
	enc := wav.NewEncoder(ws, sampleRate, 16, 1, 1)

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return ws.buf, nil
}

// memWriteSeeker is the in-memory io.WriteSeeker the WAV encoder needs to
// patch chunk sizes on Close.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("seek: negative position %d", next)
	}
	m.pos = int(next)
	return next, nil
}
