package quality

import (
	"fmt"
	"math"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/RyanBlaney/sonido-sonar/algorithms/tonal"

	"github.com/RyanBlaney/mixdown/pkg/audio"
	"github.com/RyanBlaney/mixdown/pkg/audio/analysis"
)

// Score bounds
const (
	MinOpinion    = 1.0
	MaxOpinion    = 5.0
	MaxDistortion = 40.0
)

// Naturalness inputs
const (
	idealCrestLowDB  = 8.0
	idealCrestHighDB = 16.0
	maxHNRFrames     = 8
	clipThreshold    = 0.999
)

// Metrics are the objective quality proxies of one mix
type Metrics struct {
	// Intelligibility is in [0, 1]
	Intelligibility float64 `json:"intelligibility" yaml:"intelligibility"`
	// Naturalness is in [1, 5]
	Naturalness float64 `json:"naturalness" yaml:"naturalness"`
	// MOS is the composite opinion-style score in [1, 5]
	MOS float64 `json:"mos" yaml:"mos"`
	// Distortion is the band log-spectral distance to a reference in dB,
	// present only when a reference was scored
	Distortion *float64 `json:"distortion_db,omitempty" yaml:"distortion_db,omitempty"`

	HarmonicRatioDB float64   `json:"harmonic_ratio_db" yaml:"harmonic_ratio_db"`
	CrestFactorDB   float64   `json:"crest_factor_db" yaml:"crest_factor_db"`
	ClippingRatio   float64   `json:"clipping_ratio" yaml:"clipping_ratio"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
}

// Estimator computes quality metrics from a mastered buffer
type Estimator struct {
	analyzer *analysis.Analyzer
	logger   logging.Logger
	now      func() time.Time
}

// NewEstimator creates a new quality estimator
func NewEstimator(analyzer *analysis.Analyzer, logger logging.Logger) *Estimator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if analyzer == nil {
		analyzer = analysis.NewAnalyzer(nil, logger)
	}
	return &Estimator{
		analyzer: analyzer,
		logger:   logger.WithFields(logging.Fields{"component": "quality_estimator"}),
		now:      time.Now,
	}
}

// Score rates buf. When reference is non-nil a distortion score against it is
// added. Identical input always produces identical scores; only CreatedAt
// differs between calls.
func (e *Estimator) Score(buf, reference *audio.Buffer) (*Metrics, error) {
	if err := audio.Validate(buf); err != nil {
		return nil, fmt.Errorf("failed to validate buffer for scoring: %w", err)
	}

	profile, err := e.analyzer.Analyze(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze buffer for scoring: %w", err)
	}

	m := &Metrics{
		Intelligibility: 0,
		Naturalness:     MinOpinion,
		MOS:             MinOpinion,
		CrestFactorDB:   profile.CrestFactorDB,
		ClippingRatio:   clippingRatio(buf),
		CreatedAt:       e.now(),
	}

	if audio.Peak(buf) >= audio.SilenceEpsilon {
		m.HarmonicRatioDB = e.harmonicRatio(buf)
		m.Intelligibility = intelligibility(profile)
		m.Naturalness = naturalness(profile.CrestFactorDB, m.HarmonicRatioDB, m.ClippingRatio)
		m.MOS = composite(m.Intelligibility, m.Naturalness, m.ClippingRatio)
	}

	if reference != nil {
		d, err := e.distortion(profile, reference)
		if err != nil {
			return nil, err
		}
		m.Distortion = &d
	}

	e.logger.Debug("Scored buffer", logging.Fields{
		"intelligibility": m.Intelligibility,
		"naturalness":     m.Naturalness,
		"mos":             m.MOS,
		"hnr_db":          m.HarmonicRatioDB,
		"has_reference":   reference != nil,
	})

	return m, nil
}

// intelligibility combines speech-band energy share, envelope modulation
// and spectral tonality
func intelligibility(p *analysis.FrequencyProfile) float64 {
	speech := p.BandRatios[analysis.BandIndex("low-mid")] +
		p.BandRatios[analysis.BandIndex("mid")] +
		p.BandRatios[analysis.BandIndex("high-mid")]
	speechScore := clamp01(speech / 0.6)

	// Speech-like envelopes modulate; a flat envelope and a gated one score low
	modulationScore := 1 - math.Abs(clamp01(p.RMSModulation)-0.5)*2

	tonality := 1 - clamp01(p.Spectral.Flatness)

	return clamp01(0.5*speechScore + 0.3*modulationScore + 0.2*tonality)
}

func naturalness(crestDB, hnrDB, clipRatio float64) float64 {
	var crestScore float64
	switch {
	case crestDB < idealCrestLowDB:
		crestScore = clamp01(crestDB / idealCrestLowDB)
	case crestDB > idealCrestHighDB:
		crestScore = clamp01(1 - (crestDB-idealCrestHighDB)/idealCrestHighDB)
	default:
		crestScore = 1
	}

	hnrScore := clamp01((hnrDB + 10) / 40)
	score := 0.5*crestScore + 0.5*hnrScore
	score *= 1 - clipPenalty(clipRatio)

	return MinOpinion + (MaxOpinion-MinOpinion)*clamp01(score)
}

func composite(intel, nat, clipRatio float64) float64 {
	natUnit := (nat - MinOpinion) / (MaxOpinion - MinOpinion)
	score := 0.45*intel + 0.45*natUnit + 0.1*(1-clipPenalty(clipRatio))
	return MinOpinion + (MaxOpinion-MinOpinion)*clamp01(score)
}

// clipPenalty reaches 1 when 1% of samples sit at full scale
func clipPenalty(ratio float64) float64 {
	return clamp01(ratio * 100)
}

// harmonicRatio averages the HNR over up to maxHNRFrames evenly spaced frames
// of the mono downmix
func (e *Estimator) harmonicRatio(buf *audio.Buffer) float64 {
	// The analyzer keeps temporal smoothing state, so each call gets its own
	hra := tonal.NewHarmonicRatioAnalyzer(buf.SampleRate)
	window := hra.GetParameters().WindowSize

	mono := buf.Mono()
	if len(mono) < window {
		padded := make([]float64, window)
		copy(padded, mono)
		mono = padded
	}

	frames := min(maxHNRFrames, 1+(len(mono)-window)/window)
	step := 0
	if frames > 1 {
		step = (len(mono) - window) / (frames - 1)
	}

	results := make([]tonal.HarmonicRatioResult, 0, frames)
	for i := range frames {
		start := i * step
		result, err := hra.AnalyzeFrame(mono[start : start+window])
		if err != nil {
			e.logger.Warn("Harmonic ratio frame analysis failed", logging.Fields{
				"frame": i,
				"error": err.Error(),
			})
			continue
		}
		if math.IsNaN(result.HarmonicRatio) || math.IsInf(result.HarmonicRatio, 0) {
			continue
		}
		results = append(results, result)
	}

	hnr := hra.GetAverageHarmonicRatio(results)
	if math.IsNaN(hnr) || math.IsInf(hnr, 0) {
		return 0
	}
	return hnr
}

// distortion is the RMS difference in dB between band energy ratios of the
// scored buffer and the reference, bounded to [0, MaxDistortion]
func (e *Estimator) distortion(profile *analysis.FrequencyProfile, reference *audio.Buffer) (float64, error) {
	refProfile, err := e.analyzer.Analyze(reference)
	if err != nil {
		return 0, fmt.Errorf("failed to analyze reference for scoring: %w", err)
	}

	const floor = 1e-10
	sum := 0.0
	for i := range analysis.NumBands {
		a := 10 * math.Log10(profile.BandRatios[i]+floor)
		b := 10 * math.Log10(refProfile.BandRatios[i]+floor)
		sum += (a - b) * (a - b)
	}
	d := math.Sqrt(sum / analysis.NumBands)
	if math.IsNaN(d) {
		return 0, nil
	}
	return math.Min(d, MaxDistortion), nil
}

func clippingRatio(buf *audio.Buffer) float64 {
	total, clipped := 0, 0
	for _, data := range buf.Samples {
		for _, s := range data {
			if math.Abs(s) >= clipThreshold {
				clipped++
			}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(clipped) / float64(total)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
