package audio

import "math"

// Sample is the set of integer types the PCM helpers operate on.
type Sample interface {
	~int | ~int16 | ~int32
}

// RMS returns the root-mean-square amplitude of the samples.
func RMS[T Sample](samples []T) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the largest absolute sample value.
func Peak(samples []int16) int {
	peak := 0
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// Scale multiplies every sample by factor, clamping to the int16 range.
// A factor of exactly 1 returns the input unchanged.
func Scale(samples []int16, factor float64) []int16 {
	if factor == 1 {
		return samples
	}
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = clamp16(float64(s) * factor)
	}
	return out
}

// ToMono averages interleaved channels into a single channel.
func ToMono(samples []int, channels int) []int {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int, frames)
	for i := range frames {
		sum := 0
		for ch := range channels {
			sum += samples[i*channels+ch]
		}
		out[i] = sum / channels
	}
	return out
}

// ToWidth16 rescales samples of the given byte width to the 16-bit range.
func ToWidth16(samples []int, width int) []int16 {
	out := make([]int16, len(samples))
	shift := (width - 2) * 8
	for i, s := range samples {
		switch {
		case shift > 0:
			s >>= shift
		case shift < 0:
			s <<= -shift
		}
		out[i] = clamp16(float64(s))
	}
	return out
}

// Resample16 converts mono 16-bit samples from srcRate to dstRate using
// linear interpolation. Matching rates return the input unchanged.
func Resample16(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]int16, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = clamp16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

func clamp16(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
