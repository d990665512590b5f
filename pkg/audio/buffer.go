package audio

import (
	"fmt"
	"math"
	"time"
)

const (
	// SilenceEpsilon is the peak level below which a buffer is treated as silent
	SilenceEpsilon = 1e-6

	// MixChannels is the channel count every mixing operation works in
	MixChannels = 2
)

// Buffer holds planar PCM samples in the range [-1, 1]
type Buffer struct {
	// Samples is indexed [channel][frame]
	Samples    [][]float64 `json:"-"`
	SampleRate int         `json:"sample_rate"`
}

// NewBuffer allocates a silent buffer
func NewBuffer(channels, frames, sampleRate int) *Buffer {
	samples := make([][]float64, channels)
	for ch := range samples {
		samples[ch] = make([]float64, frames)
	}
	return &Buffer{Samples: samples, SampleRate: sampleRate}
}

// NewMonoBuffer wraps a single channel of samples
func NewMonoBuffer(samples []float64, sampleRate int) *Buffer {
	return &Buffer{Samples: [][]float64{samples}, SampleRate: sampleRate}
}

// Channels returns the channel count
func (b *Buffer) Channels() int {
	if b == nil {
		return 0
	}
	return len(b.Samples)
}

// Frames returns the number of samples per channel
func (b *Buffer) Frames() int {
	if b == nil || len(b.Samples) == 0 {
		return 0
	}
	return len(b.Samples[0])
}

// Duration returns the playback length
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

// Clone returns a deep copy
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{Samples: make([][]float64, len(b.Samples)), SampleRate: b.SampleRate}
	for ch, data := range b.Samples {
		out.Samples[ch] = append([]float64(nil), data...)
	}
	return out
}

// Mono averages all channels into a single slice
func (b *Buffer) Mono() []float64 {
	frames := b.Frames()
	mono := make([]float64, frames)
	if b.Channels() == 0 {
		return mono
	}
	if b.Channels() == 1 {
		copy(mono, b.Samples[0])
		return mono
	}
	scale := 1.0 / float64(b.Channels())
	for _, data := range b.Samples {
		for i, s := range data {
			mono[i] += s * scale
		}
	}
	return mono
}

// Validate checks the structural invariants of a buffer
func Validate(b *Buffer) error {
	if b == nil || b.Frames() == 0 {
		return NewInputError(ErrCodeEmptyBuffer, "buffer has no samples", ErrEmptyBuffer)
	}
	if b.SampleRate <= 0 {
		return NewInputError(ErrCodeInvalidRate, fmt.Sprintf("sample rate %d is not positive", b.SampleRate), ErrInvalidRate)
	}
	if b.Channels() < 1 || b.Channels() > 2 {
		return NewInputError(ErrCodeInvalidChannels, fmt.Sprintf("unsupported channel count %d", b.Channels()), ErrInvalidChannels)
	}
	frames := b.Frames()
	for ch, data := range b.Samples {
		if len(data) != frames {
			return NewInputError(ErrCodeInvalidChannels,
				fmt.Sprintf("channel %d has %d frames, expected %d", ch, len(data), frames), ErrInvalidChannels)
		}
	}
	return nil
}

// CheckFinite returns a processing error if any sample is NaN or infinite
func CheckFinite(b *Buffer) error {
	for ch, data := range b.Samples {
		for i, s := range data {
			if math.IsNaN(s) || math.IsInf(s, 0) {
				return NewProcessingError(ErrCodeNonFinite,
					fmt.Sprintf("non-finite sample at channel %d frame %d", ch, i), ErrNonFiniteSample)
			}
		}
	}
	return nil
}

// DBToLinear converts decibels to a linear amplitude factor
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// LinearToDB converts a linear amplitude to decibels, floored at -120 dB
func LinearToDB(v float64) float64 {
	if v <= 1e-6 {
		return -120
	}
	return 20 * math.Log10(v)
}
