package audio

import (
	"fmt"
	"math"
)

// Resample converts the buffer to targetRate using Catmull-Rom interpolation.
// The output length is round(frames * targetRate / sampleRate).
func Resample(b *Buffer, targetRate int) (*Buffer, error) {
	if targetRate <= 0 {
		return nil, NewInputError(ErrCodeInvalidRate, fmt.Sprintf("target rate %d is not positive", targetRate), ErrInvalidRate)
	}
	if b.SampleRate <= 0 {
		return nil, NewInputError(ErrCodeInvalidRate, fmt.Sprintf("source rate %d is not positive", b.SampleRate), ErrInvalidRate)
	}
	if targetRate == b.SampleRate {
		return b.Clone(), nil
	}

	ratio := float64(b.SampleRate) / float64(targetRate)
	outFrames := int(math.Round(float64(b.Frames()) / ratio))

	out := &Buffer{Samples: make([][]float64, b.Channels()), SampleRate: targetRate}
	for ch, data := range b.Samples {
		out.Samples[ch] = resampleChannel(data, outFrames, ratio)
	}
	return out, nil
}

func resampleChannel(in []float64, outFrames int, ratio float64) []float64 {
	out := make([]float64, outFrames)
	n := len(in)
	if n == 0 {
		return out
	}

	at := func(i int) float64 {
		if i < 0 {
			return in[0]
		}
		if i >= n {
			return in[n-1]
		}
		return in[i]
	}

	for i := range outFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		t := pos - float64(idx)

		p0, p1, p2, p3 := at(idx-1), at(idx), at(idx+1), at(idx+2)
		out[i] = p1 + 0.5*t*(p2-p0+t*(2*p0-5*p1+4*p2-p3+t*(3*(p1-p2)+p3-p0)))
	}
	return out
}

// ToChannels converts between mono and stereo. Mono to stereo duplicates the
// channel, stereo to mono averages both channels.
func ToChannels(b *Buffer, target int) (*Buffer, error) {
	if target < 1 || target > 2 {
		return nil, NewInputError(ErrCodeInvalidChannels, fmt.Sprintf("unsupported target channel count %d", target), ErrInvalidChannels)
	}
	if b.Channels() < 1 || b.Channels() > 2 {
		return nil, NewInputError(ErrCodeInvalidChannels, fmt.Sprintf("unsupported source channel count %d", b.Channels()), ErrInvalidChannels)
	}
	if b.Channels() == target {
		return b.Clone(), nil
	}

	if target == 2 {
		mono := b.Samples[0]
		return &Buffer{
			Samples:    [][]float64{append([]float64(nil), mono...), append([]float64(nil), mono...)},
			SampleRate: b.SampleRate,
		}, nil
	}

	return NewMonoBuffer(b.Mono(), b.SampleRate), nil
}

// GainDB scales every sample by the given gain in decibels
func GainDB(b *Buffer, db float64) *Buffer {
	return Scale(b, DBToLinear(db))
}

// Scale multiplies every sample by a linear factor
func Scale(b *Buffer, factor float64) *Buffer {
	out := b.Clone()
	for _, data := range out.Samples {
		for i := range data {
			data[i] *= factor
		}
	}
	return out
}

// Peak returns the maximum absolute sample value across all channels
func Peak(b *Buffer) float64 {
	peak := 0.0
	for _, data := range b.Samples {
		for _, s := range data {
			if a := math.Abs(s); a > peak {
				peak = a
			}
		}
	}
	return peak
}

// RMS returns the root-mean-square level across all channels
func RMS(b *Buffer) float64 {
	sum := 0.0
	count := 0
	for _, data := range b.Samples {
		for _, s := range data {
			sum += s * s
		}
		count += len(data)
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(count))
}

// NormalizePeak scales the buffer so its peak equals targetDBFS. A silent
// buffer is returned unchanged together with ErrSilentBuffer.
func NormalizePeak(b *Buffer, targetDBFS float64) (*Buffer, error) {
	peak := Peak(b)
	if peak < SilenceEpsilon {
		return b.Clone(), ErrSilentBuffer
	}
	return Scale(b, DBToLinear(targetDBFS)/peak), nil
}

// FitLength trims or zero-pads every channel to exactly frames samples
func FitLength(b *Buffer, frames int) *Buffer {
	out := &Buffer{Samples: make([][]float64, b.Channels()), SampleRate: b.SampleRate}
	for ch, data := range b.Samples {
		fitted := make([]float64, frames)
		copy(fitted, data)
		out.Samples[ch] = fitted
	}
	return out
}

// PrepareForMix brings every buffer to the highest sample rate among them and
// to stereo. Rates are never reduced.
func PrepareForMix(buffers ...*Buffer) ([]*Buffer, error) {
	targetRate := 0
	for i, b := range buffers {
		if err := Validate(b); err != nil {
			return nil, fmt.Errorf("failed to validate buffer %d: %w", i, err)
		}
		targetRate = max(targetRate, b.SampleRate)
	}

	out := make([]*Buffer, len(buffers))
	for i, b := range buffers {
		resampled, err := Resample(b, targetRate)
		if err != nil {
			return nil, fmt.Errorf("failed to resample buffer %d: %w", i, err)
		}
		stereo, err := ToChannels(resampled, MixChannels)
		if err != nil {
			return nil, fmt.Errorf("failed to convert buffer %d to stereo: %w", i, err)
		}
		out[i] = stereo
	}
	return out, nil
}

// Sum adds buffers sample by sample. All inputs must share rate, channels and length.
func Sum(buffers ...*Buffer) (*Buffer, error) {
	if len(buffers) == 0 {
		return nil, NewInputError(ErrCodeEmptyBuffer, "nothing to sum", ErrEmptyBuffer)
	}
	first := buffers[0]
	out := first.Clone()
	for _, b := range buffers[1:] {
		if b.SampleRate != first.SampleRate {
			return nil, NewInputError(ErrCodeInvalidRate,
				fmt.Sprintf("cannot sum %d Hz with %d Hz", b.SampleRate, first.SampleRate), ErrInvalidRate)
		}
		if b.Channels() != first.Channels() || b.Frames() != first.Frames() {
			return nil, NewInputError(ErrCodeMismatched, "cannot sum buffers of different shape", ErrMismatchedChannels)
		}
		for ch, data := range b.Samples {
			dst := out.Samples[ch]
			for i, s := range data {
				dst[i] += s
			}
		}
	}
	return out, nil
}
