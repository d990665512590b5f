package dynamics

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/mixdown/pkg/audio"
)

// Params configures the sidechain compressor
type Params struct {
	ThresholdDB float64 `mapstructure:"threshold_db" json:"threshold_db" yaml:"threshold_db"`
	Ratio       float64 `mapstructure:"ratio" json:"ratio" yaml:"ratio"`
	AttackMs    float64 `mapstructure:"attack_ms" json:"attack_ms" yaml:"attack_ms"`
	ReleaseMs   float64 `mapstructure:"release_ms" json:"release_ms" yaml:"release_ms"`
	// KneeDB widens the transition around the threshold; 0 is a hard knee
	KneeDB float64 `mapstructure:"knee_db" json:"knee_db" yaml:"knee_db"`
	// MaxReductionDB bounds the ducking depth; 0 leaves it unbounded
	MaxReductionDB float64 `mapstructure:"max_reduction_db" json:"max_reduction_db" yaml:"max_reduction_db"`
}

// DefaultParams returns moderate vocal ducking settings
func DefaultParams() Params {
	return Params{
		ThresholdDB:    -24,
		Ratio:          3,
		AttackMs:       10,
		ReleaseMs:      150,
		KneeDB:         0,
		MaxReductionDB: 8,
	}
}

// Validate checks the parameter ranges
func (p Params) Validate() error {
	switch {
	case p.Ratio < 1:
		return invalid("ratio %.2f must be at least 1", p.Ratio)
	case p.AttackMs <= 0:
		return invalid("attack %.2f ms must be positive", p.AttackMs)
	case p.ReleaseMs <= 0:
		return invalid("release %.2f ms must be positive", p.ReleaseMs)
	case p.ThresholdDB > 0:
		return invalid("threshold %.2f dB must not exceed 0 dBFS", p.ThresholdDB)
	case p.KneeDB < 0 || p.MaxReductionDB < 0:
		return invalid("knee and max reduction must not be negative")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return audio.NewConfigurationError(audio.ErrCodeInvalidParameter, fmt.Sprintf(format, args...), audio.ErrInvalidParameter)
}

// timeCoeff converts a time constant to a one-pole smoothing coefficient
func timeCoeff(ms float64, sampleRate int) float64 {
	return math.Exp(-1.0 / (ms * 0.001 * float64(sampleRate)))
}

// Envelope rectifies the buffer (maximum across channels) and smooths it
// with separate attack and release time constants.
func Envelope(b *audio.Buffer, attackMs, releaseMs float64) []float64 {
	attack := timeCoeff(attackMs, b.SampleRate)
	release := timeCoeff(releaseMs, b.SampleRate)

	env := make([]float64, b.Frames())
	level := 0.0
	for i := range env {
		peak := 0.0
		for _, data := range b.Samples {
			peak = math.Max(peak, math.Abs(data[i]))
		}
		if peak > level {
			level = attack*level + (1-attack)*peak
		} else {
			level = release*level + (1-release)*peak
		}
		env[i] = level
	}
	return env
}

// GainReductionDB maps a detector level to the (non-positive) gain change
func (p Params) GainReductionDB(levelDB float64) float64 {
	over := levelDB - p.ThresholdDB
	slope := 1 - 1/p.Ratio

	var gain float64
	switch {
	case p.KneeDB > 0 && math.Abs(over) <= p.KneeDB/2:
		x := over + p.KneeDB/2
		gain = -slope * x * x / (2 * p.KneeDB)
	case over > 0:
		gain = -slope * over
	}

	if p.MaxReductionDB > 0 {
		gain = math.Max(gain, -p.MaxReductionDB)
	}
	return gain
}

// GainCurve returns the linear gain applied to the music at each vocal frame
func GainCurve(vocals *audio.Buffer, p Params) ([]float64, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	env := Envelope(vocals, p.AttackMs, p.ReleaseMs)
	gains := make([]float64, len(env))
	for i, e := range env {
		if e < audio.SilenceEpsilon {
			gains[i] = 1
			continue
		}
		gains[i] = audio.DBToLinear(p.GainReductionDB(audio.LinearToDB(e)))
	}
	return gains, nil
}

// Duck lowers the music wherever the vocal envelope rises above the
// threshold. The buffer with the lower sample rate is resampled up to the
// higher rate first. Music beyond the end of the vocals is left untouched.
func Duck(music, vocals *audio.Buffer, p Params) (*audio.Buffer, error) {
	if err := audio.Validate(music); err != nil {
		return nil, fmt.Errorf("failed to validate music: %w", err)
	}
	if err := audio.Validate(vocals); err != nil {
		return nil, fmt.Errorf("failed to validate vocals: %w", err)
	}

	rate := max(music.SampleRate, vocals.SampleRate)
	var err error
	if music.SampleRate != rate {
		if music, err = audio.Resample(music, rate); err != nil {
			return nil, fmt.Errorf("failed to resample music: %w", err)
		}
	}
	if vocals.SampleRate != rate {
		if vocals, err = audio.Resample(vocals, rate); err != nil {
			return nil, fmt.Errorf("failed to resample vocals: %w", err)
		}
	}

	if music.Channels() != vocals.Channels() {
		return nil, audio.NewInputError(audio.ErrCodeMismatched,
			fmt.Sprintf("music has %d channels, vocals have %d", music.Channels(), vocals.Channels()),
			audio.ErrMismatchedChannels)
	}

	gains, err := GainCurve(vocals, p)
	if err != nil {
		return nil, err
	}

	out := music.Clone()
	for _, data := range out.Samples {
		for i := range min(len(data), len(gains)) {
			data[i] *= gains[i]
		}
	}
	return out, nil
}
