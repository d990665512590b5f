package eq

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/RyanBlaney/mixdown/pkg/audio"
	"github.com/RyanBlaney/mixdown/pkg/audio/analysis"
)

// Curve holds target energy ratios per analysis band
type Curve [analysis.NumBands]float64

// Normalized returns the curve scaled to sum to 1
func (c Curve) Normalized() Curve {
	sum := 0.0
	for _, v := range c {
		sum += math.Max(v, 0)
	}
	if sum == 0 {
		return c
	}
	var out Curve
	for i, v := range c {
		out[i] = math.Max(v, 0) / sum
	}
	return out
}

// Blend moves c toward other by weight in [0, 1]
func (c Curve) Blend(other Curve, weight float64) Curve {
	weight = math.Max(0, math.Min(1, weight))
	var out Curve
	for i := range c {
		out[i] = (1-weight)*c[i] + weight*other[i]
	}
	return out.Normalized()
}

// Options controls the dynamic EQ
type Options struct {
	// ThresholdDB is the minimum band deviation that triggers a correction
	ThresholdDB float64 `mapstructure:"threshold_db" json:"threshold_db" yaml:"threshold_db"`
	// MaxGainDB caps every correction in both directions
	MaxGainDB float64 `mapstructure:"max_gain_db" json:"max_gain_db" yaml:"max_gain_db"`
	// Strength is the fraction of the deviation corrected for clean input
	Strength float64 `mapstructure:"strength" json:"strength" yaml:"strength"`
	// NoisyStrength is the fraction corrected for noisy input
	NoisyStrength float64 `mapstructure:"noisy_strength" json:"noisy_strength" yaml:"noisy_strength"`
}

// DefaultOptions returns the default dynamic EQ settings
func DefaultOptions() *Options {
	return &Options{
		ThresholdDB:   3.0,
		MaxGainDB:     4.0,
		Strength:      0.5,
		NoisyStrength: 0.3,
	}
}

// Correction is a single planned band adjustment
type Correction struct {
	Band        string     `json:"band"`
	Filter      FilterType `json:"filter"`
	Frequency   float64    `json:"frequency_hz"`
	Q           float64    `json:"q"`
	DeviationDB float64    `json:"deviation_db"`
	GainDB      float64    `json:"gain_db"`
}

// DynamicEQ corrects band energy toward a target curve
type DynamicEQ struct {
	options *Options
	logger  logging.Logger
}

// NewDynamicEQ creates a new dynamic EQ
func NewDynamicEQ(options *Options, logger logging.Logger) *DynamicEQ {
	if options == nil {
		options = DefaultOptions()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &DynamicEQ{
		options: options,
		logger:  logger.WithFields(logging.Fields{"component": "dynamic_eq"}),
	}
}

// Plan computes at most one correction per band. In noisy mode the high and
// air bands are never boosted and the correction strength is reduced.
func (d *DynamicEQ) Plan(profile *analysis.FrequencyProfile, curve Curve, mode analysis.SignalMode) []Correction {
	if profile == nil || profile.TotalEnergy <= 1e-12 {
		return nil
	}

	target := curve.Normalized()
	strength := d.options.Strength
	if mode == analysis.ModeNoisy {
		strength = d.options.NoisyStrength
	}
	maxFreq := 0.45 * float64(profile.SampleRate)

	var corrections []Correction
	for i, band := range analysis.Bands {
		measured := profile.BandRatios[i]
		if target[i] <= 0 || measured <= 0 || band.Low >= maxFreq {
			continue
		}

		deviation := 10 * math.Log10(measured/target[i])
		if math.Abs(deviation) <= d.options.ThresholdDB {
			continue
		}

		gain := clamp(-deviation*strength, -d.options.MaxGainDB, d.options.MaxGainDB)
		if mode == analysis.ModeNoisy && gain > 0 && (band.Name == "high" || band.Name == "air") {
			continue
		}

		c := Correction{
			Band:        band.Name,
			DeviationDB: deviation,
			GainDB:      gain,
			Q:           0.707,
		}
		switch i {
		case 0:
			c.Filter = LowShelf
			c.Frequency = band.High
		case analysis.NumBands - 1:
			c.Filter = HighShelf
			c.Frequency = band.Low
		default:
			c.Filter = Peaking
			c.Frequency = band.Center()
			c.Q = math.Max(0.5, band.Center()/(band.High-band.Low))
		}
		c.Frequency = math.Min(c.Frequency, maxFreq)
		corrections = append(corrections, c)
	}
	return corrections
}

// Apply plans corrections from the profile and filters the buffer zero-phase
func (d *DynamicEQ) Apply(buf *audio.Buffer, profile *analysis.FrequencyProfile, curve Curve, mode analysis.SignalMode) (*audio.Buffer, []Correction, error) {
	if err := audio.Validate(buf); err != nil {
		return nil, nil, fmt.Errorf("failed to validate eq input: %w", err)
	}

	corrections := d.Plan(profile, curve, mode)
	out := buf.Clone()
	for _, c := range corrections {
		// Half the gain per pass; the forward and backward passes multiply.
		coeffs := Design(c.Filter, c.Frequency, c.GainDB/2, c.Q, buf.SampleRate)
		for ch, data := range out.Samples {
			out.Samples[ch] = FiltFilt(coeffs, data)
		}
	}

	if len(corrections) > 0 {
		d.logger.Debug("Applied dynamic EQ", logging.Fields{
			"corrections": len(corrections),
			"mode":        string(mode),
		})
	}
	return out, corrections, nil
}

// Band is a static EQ band setting
type Band struct {
	Type      FilterType `mapstructure:"type" json:"type" yaml:"type"`
	Frequency float64    `mapstructure:"frequency" json:"frequency" yaml:"frequency"`
	GainDB    float64    `mapstructure:"gain_db" json:"gain_db" yaml:"gain_db"`
	Q         float64    `mapstructure:"q" json:"q" yaml:"q"`
}

// MaxStaticGainDB bounds static band gains
const MaxStaticGainDB = 12.0

// Validate checks a static band against a sample rate
func (b Band) Validate(sampleRate int) error {
	if b.Frequency <= 0 || b.Frequency >= float64(sampleRate)/2 {
		return audio.NewConfigurationError(audio.ErrCodeInvalidParameter,
			fmt.Sprintf("band frequency %.1f Hz outside (0, %d)", b.Frequency, sampleRate/2), audio.ErrInvalidParameter)
	}
	if b.Q <= 0 {
		return audio.NewConfigurationError(audio.ErrCodeInvalidParameter,
			fmt.Sprintf("band Q %.3f must be positive", b.Q), audio.ErrInvalidParameter)
	}
	return nil
}

// ApplyBands filters the buffer through each static band, zero-phase. Bands
// above the Nyquist frequency of the buffer are skipped.
func ApplyBands(buf *audio.Buffer, bands []Band) (*audio.Buffer, error) {
	out := buf.Clone()
	for _, b := range bands {
		if b.Frequency >= float64(buf.SampleRate)/2 {
			continue
		}
		if err := b.Validate(buf.SampleRate); err != nil {
			return nil, err
		}
		filterType := b.Type
		if filterType == "" {
			filterType = Peaking
		}
		gain := clamp(b.GainDB, -MaxStaticGainDB, MaxStaticGainDB)
		coeffs := Design(filterType, b.Frequency, gain/2, b.Q, buf.SampleRate)
		for ch, data := range out.Samples {
			out.Samples[ch] = FiltFilt(coeffs, data)
		}
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
