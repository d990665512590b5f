package stereo

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/mixdown/pkg/audio"
)

// Width bounds
const (
	MinWidth = 0.5
	MaxWidth = 2.0
)

// Settings groups the imaging stage parameters of a mixing configuration
type Settings struct {
	Width  float64      `mapstructure:"width" json:"width" yaml:"width"`
	Reverb ReverbParams `mapstructure:"reverb" json:"reverb" yaml:"reverb"`
	Delay  DelayParams  `mapstructure:"delay" json:"delay" yaml:"delay"`
}

// ClampWidth limits a width factor to the supported range
func ClampWidth(width float64) float64 {
	return math.Max(MinWidth, math.Min(MaxWidth, width))
}

// Widen scales the side signal of a stereo buffer by width. A width of 1 is
// a no-op; widths outside [MinWidth, MaxWidth] are rejected. Mono buffers have
// no side signal and are returned unchanged.
func Widen(b *audio.Buffer, width float64) (*audio.Buffer, error) {
	if math.IsNaN(width) || width < MinWidth || width > MaxWidth {
		return nil, audio.NewConfigurationError(audio.ErrCodeInvalidParameter,
			fmt.Sprintf("width %.3f outside [%.1f, %.1f]", width, MinWidth, MaxWidth), audio.ErrWidthOutOfRange)
	}
	if b.Channels() != 2 || width == 1 {
		return b.Clone(), nil
	}

	out := b.Clone()
	left, right := out.Samples[0], out.Samples[1]
	for i := range left {
		mid := (left[i] + right[i]) / 2
		side := (left[i] - right[i]) / 2 * width
		left[i] = mid + side
		right[i] = mid - side
	}
	return out, nil
}

// Apply runs widening followed by reverb and delay when their wet mix is non-zero
func Apply(b *audio.Buffer, s Settings) (*audio.Buffer, error) {
	out, err := Widen(b, s.Width)
	if err != nil {
		return nil, err
	}
	if s.Reverb.WetMix > 0 {
		if out, err = AddReverb(out, s.Reverb); err != nil {
			return nil, fmt.Errorf("failed to add reverb: %w", err)
		}
	}
	if s.Delay.WetMix > 0 {
		if out, err = AddDelay(out, s.Delay); err != nil {
			return nil, fmt.Errorf("failed to add delay: %w", err)
		}
	}
	return out, nil
}
